// Package model defines the core domain types for the event enrollment
// and fulfillment system.
package model

import "time"

// EventType distinguishes plain-attendance events from merchandise drops.
type EventType string

const (
	EventTypeAttendance  EventType = "ATTENDANCE"
	EventTypeMerchandise EventType = "MERCHANDISE"
)

// EventStatus is the stored lifecycle status of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventOngoing   EventStatus = "ONGOING"
	EventClosed    EventStatus = "CLOSED"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
)

// Eligibility restricts which participant category may register.
type Eligibility string

const (
	EligibilityAll      Eligibility = "ALL"
	EligibilityInternal Eligibility = "INTERNAL_ONLY"
	EligibilityExternal Eligibility = "EXTERNAL_ONLY"
)

// ParticipantType is the category the identity collaborator reports for
// a participant.
type ParticipantType string

const (
	ParticipantInternal ParticipantType = "INTERNAL"
	ParticipantExternal ParticipantType = "EXTERNAL"
)

// FormField is one question on an attendance event's registration form.
// The form definition is frozen (formLocked) after the first successful
// registration.
type FormField struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

// MerchandiseItem is a single stock-keeping unit sold by a merchandise
// event. Stock is a shared pool; it is only ever changed through the
// repository's conditional decrement/restore so it can never go negative.
type MerchandiseItem struct {
	ID            string  `json:"id"`
	EventID       string  `json:"event_id"`
	Name          string  `json:"name"`
	Size          string  `json:"size,omitempty"`
	Color         string  `json:"color,omitempty"`
	Price         float64 `json:"price"`
	Stock         int     `json:"stock"`
	PurchaseLimit int     `json:"purchase_limit"`
}

// Event is a bookable event owned by an organizer.
type Event struct {
	ID                   string            `json:"id"`
	OrganizerID          string            `json:"organizer_id"`
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Type                 EventType         `json:"type"`
	Eligibility          Eligibility       `json:"eligibility"`
	Status               EventStatus       `json:"status"`
	StartTime            time.Time         `json:"start_time"`
	EndTime              time.Time         `json:"end_time"`
	RegistrationDeadline time.Time         `json:"registration_deadline"`
	RegistrationLimit    int               `json:"registration_limit"` // 0 = unlimited
	RegistrationFee      float64           `json:"registration_fee"`
	RegistrationCount    int               `json:"registration_count"`
	Revenue              float64           `json:"revenue"`
	ViewCount            int               `json:"view_count"`
	FormLocked           bool              `json:"form_locked"`
	FormFields           []FormField       `json:"form_fields,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	MerchandiseItems     []MerchandiseItem `json:"merchandise_items,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// EffectiveStatus is the single read-time status computation: a stored
// status other than CANCELLED becomes COMPLETED once the event's end time
// has passed. The result is never persisted; every read path must go
// through this function.
func (e *Event) EffectiveStatus(now time.Time) EventStatus {
	if e.Status != EventCancelled && now.After(e.EndTime) {
		return EventCompleted
	}
	return e.Status
}

// IsFull reports whether the event has reached a positive registration limit.
func (e *Event) IsFull() bool {
	return e.RegistrationLimit > 0 && e.RegistrationCount >= e.RegistrationLimit
}

// RegistrationOpen reports whether the event currently accepts claims:
// effective status PUBLISHED or ONGOING, deadline not passed, not full.
func (e *Event) RegistrationOpen(now time.Time) bool {
	status := e.EffectiveStatus(now)
	if status != EventPublished && status != EventOngoing {
		return false
	}
	return !now.After(e.RegistrationDeadline) && !e.IsFull()
}

// Admits reports whether a participant of the given category satisfies
// the event's eligibility rule.
func (e *Event) Admits(pt ParticipantType) bool {
	switch e.Eligibility {
	case EligibilityInternal:
		return pt == ParticipantInternal
	case EligibilityExternal:
		return pt == ParticipantExternal
	default:
		return true
	}
}

// Item resolves a merchandise item by id, or nil.
func (e *Event) Item(itemID string) *MerchandiseItem {
	for i := range e.MerchandiseItems {
		if e.MerchandiseItems[i].ID == itemID {
			return &e.MerchandiseItems[i]
		}
	}
	return nil
}

// Terminal reports whether the stored status admits no further transition.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// EventFilter narrows event listings. Zero values mean "no filter".
type EventFilter struct {
	Status      EventStatus
	Type        EventType
	OrganizerID string
	Limit       int
	Offset      int
}
