package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/ticket"
	"github.com/google/uuid"
)

// Register enrolls a participant in an attendance event. The checks here
// fail fast; the capacity and uniqueness invariants are enforced again,
// atomically, inside the store's Register transaction.
func (s *Service) Register(ctx context.Context, p Participant, eventID string, formResponses map[string]any) (*model.Registration, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Type != model.EventTypeAttendance {
		return nil, model.ErrWrongEventType
	}

	now := s.now().UTC()
	switch event.EffectiveStatus(now) {
	case model.EventPublished, model.EventOngoing:
	default:
		return nil, model.ErrEventNotOpen
	}
	if now.After(event.RegistrationDeadline) {
		return nil, model.ErrDeadlinePassed
	}
	if event.IsFull() {
		return nil, model.ErrEventFull
	}
	if !event.Admits(p.Type) {
		return nil, model.ErrIneligible
	}

	paymentStatus := model.PaymentNotRequired
	if event.RegistrationFee > 0 {
		paymentStatus = model.PaymentPending
	}
	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		ParticipantID: p.ID,
		TicketID:      ticket.NewID(event.Type),
		Status:        model.RegistrationConfirmed,
		PaymentStatus: paymentStatus,
		PaymentAmount: event.RegistrationFee,
		FormResponses: formResponses,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.registrations.Register(ctx, reg)
	if errors.Is(err, model.ErrTicketCollision) {
		reg.TicketID = ticket.NewID(event.Type)
		err = s.registrations.Register(ctx, reg)
	}
	if err != nil {
		return nil, err
	}

	s.notifyTicket(ctx, event, reg)
	s.invalidateListings(ctx)
	return reg, nil
}

// CancelRegistration cancels the participant's own registration. The
// registrationCount is released for claims that had been counted;
// merchandise stock is never touched by a cancel.
func (s *Service) CancelRegistration(ctx context.Context, participantID, registrationID string) error {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.ParticipantID != participantID {
		return model.ErrUnauthorized
	}
	if reg.Status == model.RegistrationCancelled {
		return model.ErrAlreadyCancelled
	}
	if reg.Status.Terminal() {
		return model.ErrStatusMismatch
	}

	if err := s.registrations.Cancel(ctx, reg); err != nil {
		return err
	}
	s.invalidateListings(ctx)
	return nil
}

// RegistrationView pairs a registration with a summary of its event for
// participant-facing listings.
type RegistrationView struct {
	Registration model.Registration `json:"registration"`
	EventName    string             `json:"event_name"`
	EventType    model.EventType    `json:"event_type"`
	EventStatus  model.EventStatus  `json:"event_status"`
}

// CategorizedRegistrations groups a participant's registrations the way
// the portal displays them.
type CategorizedRegistrations struct {
	Upcoming  []RegistrationView `json:"upcoming"`
	Completed []RegistrationView `json:"completed"`
	Cancelled []RegistrationView `json:"cancelled"`
}

// MyRegistrations lists the participant's registrations grouped into
// upcoming, completed, and cancelled using the events' effective status.
func (s *Service) MyRegistrations(ctx context.Context, participantID string) (*CategorizedRegistrations, error) {
	regs, err := s.registrations.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	events := map[string]*model.Event{}
	out := &CategorizedRegistrations{}
	for _, reg := range regs {
		event, ok := events[reg.EventID]
		if !ok {
			event, err = s.events.GetByID(ctx, reg.EventID)
			if err != nil {
				return nil, fmt.Errorf("load event %s: %w", reg.EventID, err)
			}
			events[reg.EventID] = event
		}
		status := event.EffectiveStatus(now)
		view := RegistrationView{
			Registration: reg,
			EventName:    event.Name,
			EventType:    event.Type,
			EventStatus:  status,
		}
		switch {
		case reg.Status.Terminal():
			out.Cancelled = append(out.Cancelled, view)
		case status == model.EventCompleted:
			out.Completed = append(out.Completed, view)
		default:
			out.Upcoming = append(out.Upcoming, view)
		}
	}
	return out, nil
}

// TicketView is a participant's issued credential: the registration, the
// structured payload, and its scannable rendering.
type TicketView struct {
	Registration *model.Registration `json:"registration"`
	Payload      ticket.Payload      `json:"payload"`
	QRCode       string              `json:"qr_code"`
}

// Ticket returns the credential for a participant's registration. Only
// confirmed registrations hold a ticket.
func (s *Service) Ticket(ctx context.Context, participantID, registrationID string) (*TicketView, error) {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.ParticipantID != participantID {
		return nil, model.ErrUnauthorized
	}
	if reg.TicketID == "" {
		return nil, model.ErrStatusMismatch
	}

	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	payload := ticket.NewPayload(event, reg)
	qr, err := ticket.RenderQR(payload)
	if err != nil {
		return nil, fmt.Errorf("render credential: %w", err)
	}
	return &TicketView{Registration: reg, Payload: payload, QRCode: qr}, nil
}
