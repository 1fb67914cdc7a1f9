package service

import (
	"context"

	"github.com/felicity-portal/enrollment/internal/model"
)

// CheckInRef identifies the registration to check in, by scanned ticket id
// or directly by registration id.
type CheckInRef struct {
	TicketID       string `json:"ticket_id"`
	RegistrationID string `json:"registration_id"`
}

// CheckInResult reports a check-in. AlreadyCheckedIn marks the idempotent
// repeat-scan case: the attendance returned is the original record, and
// the call is not an error.
type CheckInResult struct {
	TicketID         string           `json:"ticket_id"`
	ParticipantID    string           `json:"participant_id"`
	EventName        string           `json:"event_name"`
	Attendance       model.Attendance `json:"attendance"`
	AlreadyCheckedIn bool             `json:"already_checked_in"`
}

// CheckIn marks a confirmed ticket as used. Only the owning organizer may
// scan; anything but a CONFIRMED registration is a StatusMismatch. A
// repeat scan returns the stored attendance instead of failing, and there
// is no way to uncheck.
func (s *Service) CheckIn(ctx context.Context, organizerID string, ref CheckInRef) (*CheckInResult, error) {
	var (
		reg *model.Registration
		err error
	)
	switch {
	case ref.TicketID != "":
		reg, err = s.registrations.GetByTicketID(ctx, ref.TicketID)
	case ref.RegistrationID != "":
		reg, err = s.registrations.GetByID(ctx, ref.RegistrationID)
	default:
		return nil, invalid("ticket_id", "ticket_id or registration_id is required")
	}
	if err != nil {
		return nil, err
	}

	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, model.ErrUnauthorized
	}
	if reg.Status != model.RegistrationConfirmed {
		return nil, model.ErrStatusMismatch
	}

	attendance, checkedNow, err := s.registrations.CheckIn(ctx, reg.ID, organizerID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &CheckInResult{
		TicketID:         reg.TicketID,
		ParticipantID:    reg.ParticipantID,
		EventName:        event.Name,
		Attendance:       attendance,
		AlreadyCheckedIn: !checkedNow,
	}, nil
}
