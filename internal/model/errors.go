package model

import "errors"

// Domain errors shared by the repository and service layers. Handlers map
// them to HTTP statuses with errors.Is; they are never silently downgraded
// to success.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEventNotOpen is returned when the event's effective status does
	// not accept claims.
	ErrEventNotOpen = errors.New("event is not open for registration")

	// ErrDeadlinePassed is returned when the registration deadline is over.
	ErrDeadlinePassed = errors.New("registration deadline has passed")

	// ErrEventFull is returned when an event has no remaining capacity.
	ErrEventFull = errors.New("event is full")

	// ErrIneligible is returned when the participant's category fails the
	// event's eligibility rule.
	ErrIneligible = errors.New("participant is not eligible for this event")

	// ErrDuplicateRegistration is returned when the participant already
	// holds a non-terminal registration for the event.
	ErrDuplicateRegistration = errors.New("already registered for this event")

	// ErrWrongEventType is returned when an operation is called against an
	// event of the wrong type.
	ErrWrongEventType = errors.New("operation not valid for this event type")

	// ErrItemNotFound is returned when a purchase references an unknown
	// merchandise item.
	ErrItemNotFound = errors.New("merchandise item not found")

	// ErrInsufficientStock is returned when a conditional stock decrement
	// would leave the item negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPurchaseLimitExceeded is returned when a line's quantity exceeds
	// the item's per-order purchase limit.
	ErrPurchaseLimitExceeded = errors.New("purchase limit exceeded")

	// ErrNoProofAttached is returned when approval is attempted before a
	// payment proof has been uploaded.
	ErrNoProofAttached = errors.New("no payment proof attached")

	// ErrAlreadyApproved is returned when an APPROVED order is approved or
	// rejected again.
	ErrAlreadyApproved = errors.New("order is already approved")

	// ErrAlreadyCancelled is returned when a CANCELLED registration is
	// cancelled again.
	ErrAlreadyCancelled = errors.New("registration is already cancelled")

	// ErrStatusMismatch is returned when the registration's status does
	// not permit the operation, e.g. check-in on anything but CONFIRMED.
	ErrStatusMismatch = errors.New("registration status does not permit this operation")

	// ErrEventNotEditable is returned when field updates target an event
	// whose status forbids them.
	ErrEventNotEditable = errors.New("event cannot be edited in its current status")

	// ErrFormLocked is returned when the registration form definition is
	// changed after registrations have started.
	ErrFormLocked = errors.New("form cannot be modified after registrations have started")

	// ErrUnauthorized is returned when the caller does not own the resource
	// the operation targets.
	ErrUnauthorized = errors.New("not authorized for this resource")

	// ErrInvalidTransition is returned for a status change the event
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTicketCollision is returned when a generated ticket id hits the
	// storage unique constraint. Callers retry with a fresh id.
	ErrTicketCollision = errors.New("ticket id already exists")
)
