package model

import "time"

// RegistrationStatus is the lifecycle status of a participant's claim.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
	RegistrationRejected  RegistrationStatus = "REJECTED"
)

// Terminal reports whether the registration can no longer change state.
func (s RegistrationStatus) Terminal() bool {
	return s == RegistrationCancelled || s == RegistrationRejected
}

// PaymentStatus tracks the payment side of a registration.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentCompleted   PaymentStatus = "COMPLETED"
	PaymentFailed      PaymentStatus = "FAILED"
)

// ApprovalStatus is the organizer's verdict on a merchandise order's
// payment proof.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// OrderLine is a snapshot of one purchased item at order time. Quantity is
// the amount reserved against the item's stock; Price the unit price when
// the order was placed.
type OrderLine struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Size     string  `json:"size,omitempty"`
	Color    string  `json:"color,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// MerchandiseOrder is the payment-approval half of a merchandise
// registration.
type MerchandiseOrder struct {
	Lines           []OrderLine    `json:"lines"`
	TotalAmount     float64        `json:"total_amount"`
	PaymentProofRef string         `json:"payment_proof_ref,omitempty"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	ApprovalNote    string         `json:"approval_note,omitempty"`
}

// Attendance records a single check-in. Once Checked is set it is never
// cleared; repeat scans read it back.
type Attendance struct {
	Checked   bool      `json:"checked"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	CheckedBy string    `json:"checked_by,omitempty"`
}

// Registration is a participant's claim against an event: either plain
// attendance or a merchandise order. At most one non-terminal registration
// exists per (event, participant); the repository enforces this with a
// partial unique index.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	ParticipantID string             `json:"participant_id"`
	TicketID      string             `json:"ticket_id,omitempty"`
	Status        RegistrationStatus `json:"status"`
	PaymentStatus PaymentStatus      `json:"payment_status"`
	PaymentAmount float64            `json:"payment_amount"`
	FormResponses map[string]any     `json:"form_responses,omitempty"`
	Order         *MerchandiseOrder  `json:"order,omitempty"`
	Attendance    Attendance         `json:"attendance"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// PurchaseLine is a requested (item, quantity) pair in a purchase call.
type PurchaseLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}
