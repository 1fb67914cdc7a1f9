package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/ticket"
	"github.com/google/uuid"
)

// Purchase places a merchandise order. Stock for every line is reserved
// eagerly: the store decrements each item conditionally inside one
// transaction so concurrent orders can never drive stock negative, and a
// later rejection restores exactly what was reserved. The order total
// includes the event's base registration fee once per order.
func (s *Service) Purchase(ctx context.Context, p Participant, eventID string, lines []model.PurchaseLine) (*model.Registration, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Type != model.EventTypeMerchandise {
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
	if len(lines) == 0 {
		return nil, invalid("lines", "select at least one item")
	}

	total := event.RegistrationFee
	orderLines := make([]model.OrderLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, invalid("lines", "quantity must be at least 1")
		}
		item := event.Item(line.ItemID)
		if item == nil {
			return nil, fmt.Errorf("%s: %w", line.ItemID, model.ErrItemNotFound)
		}
		if line.Quantity > item.PurchaseLimit {
			return nil, fmt.Errorf("%s: %w", item.Name, model.ErrPurchaseLimitExceeded)
		}
		if item.Stock < line.Quantity {
			return nil, fmt.Errorf("%s: %w", item.Name, model.ErrInsufficientStock)
		}
		orderLines = append(orderLines, model.OrderLine{
			ItemID:   item.ID,
			Name:     item.Name,
			Size:     item.Size,
			Color:    item.Color,
			Quantity: line.Quantity,
			Price:    item.Price,
		})
		total += item.Price * float64(line.Quantity)
	}

	reg := &model.Registration{
		ID:            uuid.New().String(),
		EventID:       event.ID,
		ParticipantID: p.ID,
		Status:        model.RegistrationPending,
		PaymentStatus: model.PaymentPending,
		PaymentAmount: total,
		Order: &model.MerchandiseOrder{
			Lines:          orderLines,
			TotalAmount:    total,
			ApprovalStatus: model.ApprovalPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registrations.CreatePendingOrder(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// UploadPaymentProof attaches (or replaces) the payment proof on a pending
// order and re-opens the approval verdict. Terminal and already-approved
// orders refuse a new proof; re-submission while pending is idempotent.
func (s *Service) UploadPaymentProof(ctx context.Context, participantID, registrationID, proofRef string) error {
	if strings.TrimSpace(proofRef) == "" {
		return invalid("payment_proof_ref", "is required")
	}
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.ParticipantID != participantID {
		return model.ErrUnauthorized
	}
	if reg.Order == nil {
		return model.ErrWrongEventType
	}
	if reg.Order.ApprovalStatus == model.ApprovalApproved {
		return model.ErrAlreadyApproved
	}
	if reg.Status.Terminal() {
		return model.ErrStatusMismatch
	}
	return s.registrations.SetPaymentProof(ctx, registrationID, proofRef)
}

// ApproveOrder confirms a merchandise order: the registration gains its
// ticket, the event's counters absorb the sale, and the participant is
// notified. Stock stays as reserved at purchase time. Approval is not
// repeatable, and a terminal registration (rejection already restored its
// stock) cannot be approved.
func (s *Service) ApproveOrder(ctx context.Context, organizerID, registrationID, note string) (*model.Registration, error) {
	reg, event, err := s.orderForOrganizer(ctx, organizerID, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Order.PaymentProofRef == "" {
		return nil, model.ErrNoProofAttached
	}
	if reg.Order.ApprovalStatus == model.ApprovalApproved {
		return nil, model.ErrAlreadyApproved
	}
	if reg.Status.Terminal() {
		return nil, model.ErrStatusMismatch
	}

	reg.TicketID = ticket.NewID(event.Type)
	err = s.registrations.Approve(ctx, reg, note)
	if errors.Is(err, model.ErrTicketCollision) {
		reg.TicketID = ticket.NewID(event.Type)
		err = s.registrations.Approve(ctx, reg, note)
	}
	if err != nil {
		return nil, err
	}

	reg.Status = model.RegistrationConfirmed
	reg.PaymentStatus = model.PaymentCompleted
	reg.Order.ApprovalStatus = model.ApprovalApproved
	reg.Order.ApprovalNote = note

	s.notifyTicket(ctx, event, reg)
	s.invalidateListings(ctx)
	return reg, nil
}

// RejectOrder refuses a merchandise order and restores every reserved
// quantity, the compensating half of the purchase-time reservation.
func (s *Service) RejectOrder(ctx context.Context, organizerID, registrationID, note string) (*model.Registration, error) {
	reg, _, err := s.orderForOrganizer(ctx, organizerID, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Order.PaymentProofRef == "" {
		return nil, model.ErrNoProofAttached
	}
	if reg.Order.ApprovalStatus == model.ApprovalApproved {
		return nil, model.ErrAlreadyApproved
	}
	if reg.Status.Terminal() {
		return nil, model.ErrStatusMismatch
	}

	if err := s.registrations.Reject(ctx, reg, note); err != nil {
		return nil, err
	}
	reg.Status = model.RegistrationRejected
	reg.PaymentStatus = model.PaymentFailed
	reg.Order.ApprovalStatus = model.ApprovalRejected
	reg.Order.ApprovalNote = note
	return reg, nil
}

// PendingPayments lists orders across the organizer's events awaiting a
// verdict with a proof attached.
func (s *Service) PendingPayments(ctx context.Context, organizerID string) ([]model.Registration, error) {
	return s.registrations.ListPendingPayments(ctx, organizerID)
}

func (s *Service) orderForOrganizer(ctx context.Context, organizerID, registrationID string) (*model.Registration, *model.Event, error) {
	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, nil, err
	}
	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, nil, fmt.Errorf("load event %s: %w", reg.EventID, err)
	}
	if event.OrganizerID != organizerID {
		return nil, nil, model.ErrUnauthorized
	}
	if reg.Order == nil {
		return nil, nil, model.ErrWrongEventType
	}
	return reg, event, nil
}
