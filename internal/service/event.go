package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/notifier"
	"github.com/google/uuid"
)

const listingCachePrefix = "events:list:"

// CreateEventInput carries the fields an organizer sets when drafting an
// event.
type CreateEventInput struct {
	Name                 string                  `json:"name"`
	Description          string                  `json:"description"`
	Type                 model.EventType         `json:"type"`
	Eligibility          model.Eligibility       `json:"eligibility"`
	StartTime            time.Time               `json:"start_time"`
	EndTime              time.Time               `json:"end_time"`
	RegistrationDeadline time.Time               `json:"registration_deadline"`
	RegistrationLimit    int                     `json:"registration_limit"`
	RegistrationFee      float64                 `json:"registration_fee"`
	FormFields           []model.FormField       `json:"form_fields"`
	MerchandiseItems     []model.MerchandiseItem `json:"merchandise_items"`
	Tags                 []string                `json:"tags"`
}

// CreateEvent validates the draft and persists it. New events always start
// in DRAFT.
func (s *Service) CreateEvent(ctx context.Context, organizerID string, in CreateEventInput) (*model.Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid("name", "is required")
	}
	if in.Type != model.EventTypeAttendance && in.Type != model.EventTypeMerchandise {
		return nil, invalid("type", "must be ATTENDANCE or MERCHANDISE")
	}
	if in.Eligibility == "" {
		in.Eligibility = model.EligibilityAll
	}
	if in.RegistrationLimit < 0 {
		return nil, invalid("registration_limit", "cannot be negative")
	}
	if in.RegistrationFee < 0 {
		return nil, invalid("registration_fee", "cannot be negative")
	}
	if err := validateItems(in.MerchandiseItems); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	event := &model.Event{
		ID:                   uuid.New().String(),
		OrganizerID:          organizerID,
		Name:                 in.Name,
		Description:          in.Description,
		Type:                 in.Type,
		Eligibility:          in.Eligibility,
		Status:               model.EventDraft,
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		RegistrationDeadline: in.RegistrationDeadline,
		RegistrationLimit:    in.RegistrationLimit,
		RegistrationFee:      in.RegistrationFee,
		FormFields:           in.FormFields,
		MerchandiseItems:     in.MerchandiseItems,
		Tags:                 in.Tags,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.invalidateListings(ctx)
	return event, nil
}

func validateItems(items []model.MerchandiseItem) error {
	for i := range items {
		item := &items[i]
		if strings.TrimSpace(item.Name) == "" {
			return invalid("merchandise_items", "item name is required")
		}
		if item.Price < 0 {
			return invalid("merchandise_items", "price cannot be negative")
		}
		if item.Stock < 0 {
			return invalid("merchandise_items", "stock cannot be negative")
		}
		if item.PurchaseLimit == 0 {
			item.PurchaseLimit = 1
		}
		if item.PurchaseLimit < 1 {
			return invalid("merchandise_items", "purchase limit must be at least 1")
		}
	}
	return nil
}

// EventDetail is the participant-facing event read: the event with its
// effective status applied, plus whether it currently accepts claims.
type EventDetail struct {
	Event            *model.Event `json:"event"`
	RegistrationOpen bool         `json:"registration_open"`
}

// GetEvent returns the event detail and bumps the view counter (best
// effort). Registration-open state is derived from effective status,
// deadline, and capacity.
func (s *Service) GetEvent(ctx context.Context, id string) (*EventDetail, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.events.IncrementViewCount(ctx, id); err != nil {
		s.log.Warn("view count increment failed", "event_id", id, "error", err)
	}
	now := s.now()
	open := event.RegistrationOpen(now)
	event.Status = event.EffectiveStatus(now)
	return &EventDetail{Event: event, RegistrationOpen: open}, nil
}

// EventPage is a page of events plus the total match count.
type EventPage struct {
	Events []model.Event `json:"events"`
	Total  int           `json:"total"`
}

// ListEvents returns a filtered page of events. Results are served from
// the listing cache when possible; effective status is applied after
// retrieval so cached rows never pin a stale wall-clock status.
func (s *Service) ListEvents(ctx context.Context, f model.EventFilter) (*EventPage, error) {
	key := fmt.Sprintf("%sstatus=%s&type=%s&org=%s&limit=%d&offset=%d",
		listingCachePrefix, f.Status, f.Type, f.OrganizerID, f.Limit, f.Offset)

	var page EventPage
	cached := false
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &page); err == nil {
			cached = true
		}
	}
	if !cached {
		events, total, err := s.events.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		page = EventPage{Events: events, Total: total}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, page); err != nil {
				s.log.Warn("listing cache set failed", "error", err)
			}
		}
	}

	now := s.now()
	for i := range page.Events {
		page.Events[i].Status = page.Events[i].EffectiveStatus(now)
	}
	return &page, nil
}

// UpdateEventInput carries a partial event update; nil pointers mean "not
// provided".
type UpdateEventInput struct {
	Name                 *string                  `json:"name"`
	Description          *string                  `json:"description"`
	Eligibility          *model.Eligibility       `json:"eligibility"`
	StartTime            *time.Time               `json:"start_time"`
	EndTime              *time.Time               `json:"end_time"`
	RegistrationDeadline *time.Time               `json:"registration_deadline"`
	RegistrationLimit    *int                     `json:"registration_limit"`
	RegistrationFee      *float64                 `json:"registration_fee"`
	FormFields           *[]model.FormField       `json:"form_fields"`
	MerchandiseItems     *[]model.MerchandiseItem `json:"merchandise_items"`
	Tags                 *[]string                `json:"tags"`
}

// UpdateEvent applies the fields the event's current status permits:
// everything while DRAFT; only description, deadline, limit, and
// merchandise items while PUBLISHED; nothing afterwards. Fields outside
// the PUBLISHED subset are dropped rather than failing the whole request,
// mirroring how full-payload form saves are handled upstream. A locked
// form rejects form-field changes outright.
func (s *Service) UpdateEvent(ctx context.Context, organizerID, id string, in UpdateEventInput) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrUnauthorized
	}

	switch event.Status {
	case model.EventDraft, model.EventPublished:
	default:
		return nil, model.ErrEventNotEditable
	}
	if event.FormLocked && in.FormFields != nil {
		return nil, model.ErrFormLocked
	}

	draft := event.Status == model.EventDraft
	if draft {
		if in.Name != nil {
			event.Name = strings.TrimSpace(*in.Name)
		}
		if in.Eligibility != nil {
			event.Eligibility = *in.Eligibility
		}
		if in.StartTime != nil {
			event.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			event.EndTime = *in.EndTime
		}
		if in.RegistrationFee != nil {
			event.RegistrationFee = *in.RegistrationFee
		}
		if in.FormFields != nil {
			event.FormFields = *in.FormFields
		}
		if in.Tags != nil {
			event.Tags = *in.Tags
		}
	}
	if in.Description != nil {
		event.Description = *in.Description
	}
	if in.RegistrationDeadline != nil {
		event.RegistrationDeadline = *in.RegistrationDeadline
	}
	if in.RegistrationLimit != nil {
		if *in.RegistrationLimit < 0 {
			return nil, invalid("registration_limit", "cannot be negative")
		}
		event.RegistrationLimit = *in.RegistrationLimit
	}
	if in.MerchandiseItems != nil {
		if err := validateItems(*in.MerchandiseItems); err != nil {
			return nil, err
		}
		event.MerchandiseItems = *in.MerchandiseItems
	}

	if event.Name == "" {
		return nil, invalid("name", "is required")
	}
	if err := s.events.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	s.invalidateListings(ctx)
	return event, nil
}

// PublishEvent moves a fully specified draft to PUBLISHED and announces it.
func (s *Service) PublishEvent(ctx context.Context, organizerID, id string) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrUnauthorized
	}
	if event.Status != model.EventDraft {
		return nil, model.ErrInvalidTransition
	}
	switch {
	case event.Name == "":
		return nil, invalid("name", "is required to publish")
	case event.Description == "":
		return nil, invalid("description", "is required to publish")
	case event.StartTime.IsZero():
		return nil, invalid("start_time", "is required to publish")
	case event.EndTime.IsZero():
		return nil, invalid("end_time", "is required to publish")
	case event.RegistrationDeadline.IsZero():
		return nil, invalid("registration_deadline", "is required to publish")
	}

	if err := s.events.UpdateStatus(ctx, id, []model.EventStatus{model.EventDraft}, model.EventPublished); err != nil {
		return nil, err
	}
	event.Status = model.EventPublished

	if s.notifier != nil {
		err := s.notifier.PublishEventPublished(ctx, notifier.EventPublished{
			EventID:     event.ID,
			EventName:   event.Name,
			OrganizerID: event.OrganizerID,
		})
		if err != nil {
			s.log.Warn("publish announcement failed", "event_id", event.ID, "error", err)
		}
	}
	s.invalidateListings(ctx)
	return event, nil
}

// UpdateEventStatus applies an explicit organizer-driven transition. Only
// ONGOING, CLOSED, COMPLETED, and CANCELLED are reachable this way, and
// only from PUBLISHED or ONGOING.
func (s *Service) UpdateEventStatus(ctx context.Context, organizerID, id string, to model.EventStatus) (*model.Event, error) {
	switch to {
	case model.EventOngoing, model.EventClosed, model.EventCompleted, model.EventCancelled:
	default:
		return nil, invalid("status", "must be one of ONGOING, CLOSED, COMPLETED, CANCELLED")
	}

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrUnauthorized
	}

	from := []model.EventStatus{model.EventPublished, model.EventOngoing}
	if err := s.events.UpdateStatus(ctx, id, from, to); err != nil {
		return nil, err
	}
	event.Status = to
	s.invalidateListings(ctx)
	return event, nil
}

// ListEventRegistrations returns every registration for an event the
// organizer owns.
func (s *Service) ListEventRegistrations(ctx context.Context, organizerID, eventID string) ([]model.Registration, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrUnauthorized
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

