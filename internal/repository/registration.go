package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository handles persistence for registrations, orders,
// and attendance.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `id, event_id, participant_id, ticket_id, status,
	payment_status, payment_amount, form_responses, order_lines, order_total,
	payment_proof_ref, approval_status, approval_note,
	attendance_checked, attendance_at, checked_by, created_at, updated_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		reg          model.Registration
		lines        []model.OrderLine
		orderTotal   float64
		proofRef     string
		approval     string
		approvalNote string
		attendanceAt *time.Time
	)
	err := row.Scan(
		&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.TicketID, &reg.Status,
		&reg.PaymentStatus, &reg.PaymentAmount, &reg.FormResponses, &lines, &orderTotal,
		&proofRef, &approval, &approvalNote,
		&reg.Attendance.Checked, &attendanceAt, &reg.Attendance.CheckedBy,
		&reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	if attendanceAt != nil {
		reg.Attendance.Timestamp = *attendanceAt
	}
	if approval != "" {
		reg.Order = &model.MerchandiseOrder{
			Lines:           lines,
			TotalAmount:     orderTotal,
			PaymentProofRef: proofRef,
			ApprovalStatus:  model.ApprovalStatus(approval),
			ApprovalNote:    approvalNote,
		}
	}
	return &reg, nil
}

// Register performs a concurrency-safe attendance registration inside a
// single transaction:
//
//  1. lock the event row (SELECT ... FOR UPDATE) so concurrent attempts on
//     the same event serialize,
//  2. guard the capacity counter under that lock,
//  3. insert the CONFIRMED registration; the partial unique index on
//     (event_id, participant_id) catches duplicate live claims and the
//     ticket index catches an id collision,
//  4. increment registration_count and lock the form in the same commit.
//
// Without the row lock two transactions could both read free capacity and
// both insert, overbooking the event.
func (r *RegistrationRepository) Register(ctx context.Context, reg *model.Registration) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var limit, count int
	err = tx.QueryRow(ctx,
		`SELECT registration_limit, registration_count FROM events WHERE id = $1 FOR UPDATE`,
		reg.EventID,
	).Scan(&limit, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if limit > 0 && count >= limit {
		return model.ErrEventFull
	}

	if err := insertRegistration(ctx, tx, reg); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET registration_count = registration_count + 1, form_locked = TRUE,
			updated_at = now()
		 WHERE id = $1`,
		reg.EventID,
	)
	if err != nil {
		return fmt.Errorf("increment registration count: %w", err)
	}

	return tx.Commit(ctx)
}

func insertRegistration(ctx context.Context, tx pgx.Tx, reg *model.Registration) error {
	var (
		lines        []model.OrderLine
		orderTotal   float64
		approval     string
		approvalNote string
		proofRef     string
	)
	if reg.Order != nil {
		lines = reg.Order.Lines
		orderTotal = reg.Order.TotalAmount
		approval = string(reg.Order.ApprovalStatus)
		approvalNote = reg.Order.ApprovalNote
		proofRef = reg.Order.PaymentProofRef
	}
	responses := reg.FormResponses
	if responses == nil {
		responses = map[string]any{}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, participant_id, ticket_id, status,
			payment_status, payment_amount, form_responses, order_lines, order_total,
			payment_proof_ref, approval_status, approval_note, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		reg.ID, reg.EventID, reg.ParticipantID, reg.TicketID, reg.Status,
		reg.PaymentStatus, reg.PaymentAmount, responses, lines, orderTotal,
		proofRef, approval, approvalNote, reg.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, activeRegistrationIndex):
			return model.ErrDuplicateRegistration
		case isUniqueViolation(err, ticketIndex):
			return model.ErrTicketCollision
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// CreatePendingOrder reserves stock and records a merchandise order in one
// transaction. Each line's decrement is a single conditional statement
// that fails when the remaining stock is insufficient; a failure (or a
// duplicate-registration violation on insert) rolls every reservation back.
func (r *RegistrationRepository) CreatePendingOrder(ctx context.Context, reg *model.Registration) error {
	if reg.Order == nil {
		return fmt.Errorf("pending order requires a merchandise order")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, line := range reg.Order.Lines {
		tag, err := tx.Exec(ctx,
			`UPDATE merchandise_items SET stock = stock - $3
			 WHERE id = $1 AND event_id = $2 AND stock >= $3`,
			line.ItemID, reg.EventID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("reserve stock for %s: %w", line.ItemID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s: %w", line.Name, model.ErrInsufficientStock)
		}
	}

	if err := insertRegistration(ctx, tx, reg); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel marks a registration CANCELLED, conditional on the status the
// caller observed, and decrements the event's registration counter when
// the registration had been counted (CONFIRMED). Stock is never touched.
// A missed update is re-read to report what actually happened to the row.
func (r *RegistrationRepository) Cancel(ctx context.Context, reg *model.Registration) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE registrations SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2`,
		reg.ID, reg.Status, model.RegistrationCancelled,
	)
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetByID(ctx, reg.ID)
		if err != nil {
			return err
		}
		if current.Status == model.RegistrationCancelled {
			return model.ErrAlreadyCancelled
		}
		return model.ErrStatusMismatch
	}

	if reg.Status == model.RegistrationConfirmed {
		_, err = tx.Exec(ctx,
			`UPDATE events SET registration_count = GREATEST(registration_count - 1, 0),
				updated_at = now()
			 WHERE id = $1`,
			reg.EventID,
		)
		if err != nil {
			return fmt.Errorf("decrement registration count: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SetPaymentProof attaches a proof reference and resets the approval
// verdict to PENDING. Re-submission overwrites the previous reference.
func (r *RegistrationRepository) SetPaymentProof(ctx context.Context, id, proofRef string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET payment_proof_ref = $2, approval_status = $3, updated_at = now()
		 WHERE id = $1`,
		id, proofRef, model.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("set payment proof: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Approve finalizes an order: the registration becomes CONFIRMED with its
// ticket, and the event's counters absorb the sale. The guard refuses
// repeated approvals and terminal registrations; a rejection has already
// restored the reserved stock, so approving it afterwards would sell units
// the pool no longer holds.
func (r *RegistrationRepository) Approve(ctx context.Context, reg *model.Registration, note string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE registrations SET status = $2, payment_status = $3, approval_status = $4,
			approval_note = $5, ticket_id = $6, updated_at = now()
		 WHERE id = $1 AND approval_status <> $4 AND status NOT IN ($7, $8)`,
		reg.ID, model.RegistrationConfirmed, model.PaymentCompleted, model.ApprovalApproved,
		note, reg.TicketID, model.RegistrationRejected, model.RegistrationCancelled,
	)
	if err != nil {
		if isUniqueViolation(err, ticketIndex) {
			return model.ErrTicketCollision
		}
		return fmt.Errorf("approve order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetByID(ctx, reg.ID)
		if err != nil {
			return err
		}
		if current.Order != nil && current.Order.ApprovalStatus == model.ApprovalApproved {
			return model.ErrAlreadyApproved
		}
		return model.ErrStatusMismatch
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET registration_count = registration_count + 1, revenue = revenue + $2,
			updated_at = now()
		 WHERE id = $1`,
		reg.EventID, reg.Order.TotalAmount,
	)
	if err != nil {
		return fmt.Errorf("record sale: %w", err)
	}
	return tx.Commit(ctx)
}

// Reject marks an order REJECTED and restores every reserved quantity, the
// compensating half of the purchase-time reservation. The status guard
// ensures stock is restored at most once per order.
func (r *RegistrationRepository) Reject(ctx context.Context, reg *model.Registration, note string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE registrations SET status = $2, payment_status = $3, approval_status = $4,
			approval_note = $5, updated_at = now()
		 WHERE id = $1 AND status <> $2 AND approval_status <> $6`,
		reg.ID, model.RegistrationRejected, model.PaymentFailed, model.ApprovalRejected,
		note, model.ApprovalApproved,
	)
	if err != nil {
		return fmt.Errorf("reject order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyApproved
	}

	for _, line := range reg.Order.Lines {
		_, err := tx.Exec(ctx,
			`UPDATE merchandise_items SET stock = stock + $3
			 WHERE id = $1 AND event_id = $2`,
			line.ItemID, reg.EventID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("restore stock for %s: %w", line.ItemID, err)
		}
	}
	return tx.Commit(ctx)
}

// CheckIn marks attendance with a conditional update so a repeat scan
// never overwrites the original record. The second return value reports
// whether this call performed the check-in; when false the returned
// attendance is the original one.
func (r *RegistrationRepository) CheckIn(ctx context.Context, id, organizerID string, now time.Time) (model.Attendance, bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET attendance_checked = TRUE, attendance_at = $2, checked_by = $3,
			updated_at = now()
		 WHERE id = $1 AND status = $4 AND NOT attendance_checked`,
		id, now, organizerID, model.RegistrationConfirmed,
	)
	if err != nil {
		return model.Attendance{}, false, fmt.Errorf("check in: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return model.Attendance{Checked: true, Timestamp: now, CheckedBy: organizerID}, true, nil
	}

	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return model.Attendance{}, false, err
	}
	if reg.Attendance.Checked {
		return reg.Attendance, false, nil
	}
	return model.Attendance{}, false, model.ErrStatusMismatch
}

// GetByID returns a single registration or ErrNotFound.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
}

// GetByTicketID resolves a registration from its ticket credential.
func (r *RegistrationRepository) GetByTicketID(ctx context.Context, ticketID string) (*model.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE ticket_id = $1 AND ticket_id <> ''`,
		ticketID))
}

// ListByEvent returns all registrations for an event, oldest first.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 ORDER BY created_at ASC`,
		eventID)
}

// ListByParticipant returns all of a participant's registrations, newest
// first.
func (r *RegistrationRepository) ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE participant_id = $1 ORDER BY created_at DESC`,
		participantID)
}

// ListPendingPayments returns orders across an organizer's events that
// have a proof attached and await a verdict.
func (r *RegistrationRepository) ListPendingPayments(ctx context.Context, organizerID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT r.id, r.event_id, r.participant_id, r.ticket_id, r.status,
			r.payment_status, r.payment_amount, r.form_responses, r.order_lines, r.order_total,
			r.payment_proof_ref, r.approval_status, r.approval_note,
			r.attendance_checked, r.attendance_at, r.checked_by, r.created_at, r.updated_at
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE e.organizer_id = $1 AND r.approval_status = 'PENDING' AND r.payment_proof_ref <> ''
		 ORDER BY r.created_at DESC`,
		organizerID)
}

func (r *RegistrationRepository) list(ctx context.Context, query string, args ...any) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}
