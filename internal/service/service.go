// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer. Every invariant that
// matters under concurrency (capacity, stock, uniqueness) is delegated to
// the stores' atomic conditional writes; the checks done here are advisory
// fast-fails.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/notifier"
)

// EventStore is the persistence contract for events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error)
	Update(ctx context.Context, e *model.Event) error
	UpdateStatus(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) error
	IncrementViewCount(ctx context.Context, id string) error
}

// RegistrationStore is the persistence contract for registrations. Its
// write operations carry the concurrency story: Register and
// CreatePendingOrder must enforce capacity, uniqueness, and stock
// non-negativity atomically, and CheckIn must be a conditional update.
type RegistrationStore interface {
	Register(ctx context.Context, reg *model.Registration) error
	CreatePendingOrder(ctx context.Context, reg *model.Registration) error
	Cancel(ctx context.Context, reg *model.Registration) error
	SetPaymentProof(ctx context.Context, id, proofRef string) error
	Approve(ctx context.Context, reg *model.Registration, note string) error
	Reject(ctx context.Context, reg *model.Registration, note string) error
	CheckIn(ctx context.Context, id, organizerID string, now time.Time) (model.Attendance, bool, error)
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	GetByTicketID(ctx context.Context, ticketID string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error)
	ListPendingPayments(ctx context.Context, organizerID string) ([]model.Registration, error)
}

// Notifier is the fire-and-forget notification collaborator. Failures are
// logged and never affect the outcome of the core operation.
type Notifier interface {
	PublishTicketIssued(ctx context.Context, msg notifier.TicketIssued) error
	PublishEventPublished(ctx context.Context, msg notifier.EventPublished) error
}

// ListingCache is an optional read cache for event listings.
type ListingCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Participant is the authenticated principal supplied by the identity
// collaborator. The service trusts it.
type Participant struct {
	ID   string
	Type model.ParticipantType
}

// Deps wires a Service. Notifier, Cache, Logger, and Clock are optional.
type Deps struct {
	Events        EventStore
	Registrations RegistrationStore
	Notifier      Notifier
	Cache         ListingCache
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Service orchestrates all enrollment, fulfillment, ticketing, and
// check-in operations.
type Service struct {
	events        EventStore
	registrations RegistrationStore
	notifier      Notifier
	cache         ListingCache
	log           *slog.Logger
	now           func() time.Time
}

// New constructs a Service.
func New(deps Deps) *Service {
	s := &Service{
		events:        deps.Events,
		registrations: deps.Registrations,
		notifier:      deps.Notifier,
		cache:         deps.Cache,
		log:           deps.Logger,
		now:           deps.Clock,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ValidationError reports malformed or missing input with field detail.
// Nothing is persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// notifyTicket publishes a ticket notification; failures are logged only.
func (s *Service) notifyTicket(ctx context.Context, event *model.Event, reg *model.Registration) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.PublishTicketIssued(ctx, notifier.TicketIssued{
		TicketID:      reg.TicketID,
		EventID:       event.ID,
		EventName:     event.Name,
		ParticipantID: reg.ParticipantID,
	})
	if err != nil {
		s.log.Warn("ticket notification failed", "ticket_id", reg.TicketID, "error", err)
	}
}

// invalidateListings drops cached event listings after a write.
func (s *Service) invalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, listingCachePrefix); err != nil {
		s.log.Warn("listing cache invalidation failed", "error", err)
	}
}
