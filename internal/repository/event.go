// Package repository implements all database queries for the enrollment
// system. It uses pgx directly (no ORM) for transparency and performance.
// Every invariant-bearing write (capacity, stock, uniqueness) is a single
// conditional statement or a short transaction; no read-validate-then-write
// sequence crosses a statement boundary on shared counters.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Names of the partial unique indexes the registration invariants hang on.
const (
	activeRegistrationIndex = "registrations_active_uniq"
	ticketIndex             = "registrations_ticket_uniq"
)

// EventRepository handles persistence for events and their merchandise items.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, organizer_id, name, description, type, eligibility, status,
	start_time, end_time, registration_deadline, registration_limit, registration_fee,
	registration_count, revenue, view_count, form_locked, form_fields, tags, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Name, &e.Description, &e.Type, &e.Eligibility, &e.Status,
		&e.StartTime, &e.EndTime, &e.RegistrationDeadline, &e.RegistrationLimit, &e.RegistrationFee,
		&e.RegistrationCount, &e.Revenue, &e.ViewCount, &e.FormLocked, &e.FormFields, &e.Tags, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &e, nil
}

// Create inserts a new event and its merchandise items.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	formFields, tags := e.FormFields, e.Tags
	if formFields == nil {
		formFields = []model.FormField{}
	}
	if tags == nil {
		tags = []string{}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO events (id, organizer_id, name, description, type, eligibility, status,
			start_time, end_time, registration_deadline, registration_limit, registration_fee,
			form_fields, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		e.ID, e.OrganizerID, e.Name, e.Description, e.Type, e.Eligibility, e.Status,
		e.StartTime, e.EndTime, e.RegistrationDeadline, e.RegistrationLimit, e.RegistrationFee,
		formFields, tags, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := insertItems(ctx, tx, e.ID, e.MerchandiseItems); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertItems(ctx context.Context, tx pgx.Tx, eventID string, items []model.MerchandiseItem) error {
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.EventID = eventID
		_, err := tx.Exec(ctx,
			`INSERT INTO merchandise_items (id, event_id, name, size, color, price, stock, purchase_limit, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ID, eventID, item.Name, item.Size, item.Color, item.Price, item.Stock, item.PurchaseLimit, i,
		)
		if err != nil {
			return fmt.Errorf("insert merchandise item: %w", err)
		}
	}
	return nil
}

// GetByID returns a single event with its merchandise items, or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, name, size, color, price, stock, purchase_limit
		 FROM merchandise_items WHERE event_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list merchandise items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.MerchandiseItem
		if err := rows.Scan(&item.ID, &item.EventID, &item.Name, &item.Size, &item.Color,
			&item.Price, &item.Stock, &item.PurchaseLimit); err != nil {
			return nil, fmt.Errorf("scan merchandise item: %w", err)
		}
		e.MerchandiseItems = append(e.MerchandiseItems, item)
	}
	return e, rows.Err()
}

// List returns a page of events matching the filter plus the total count.
// Filtering and pagination are pushed into SQL rather than done post-fetch.
func (r *EventRepository) List(ctx context.Context, f model.EventFilter) ([]model.Event, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.OrganizerID != "" {
		args = append(args, f.OrganizerID)
		where += fmt.Sprintf(" AND organizer_id = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM events "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf("SELECT %s FROM events %s ORDER BY start_time ASC LIMIT $%d OFFSET $%d",
		eventColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *e)
	}
	return events, total, rows.Err()
}

// Update persists mutable event fields and replaces the merchandise item
// definitions. The service layer decides which fields may change for the
// event's current status; this method writes what it is given.
func (r *EventRepository) Update(ctx context.Context, e *model.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	formFields, tags := e.FormFields, e.Tags
	if formFields == nil {
		formFields = []model.FormField{}
	}
	if tags == nil {
		tags = []string{}
	}
	tag, err := tx.Exec(ctx,
		`UPDATE events SET name = $2, description = $3, eligibility = $4,
			start_time = $5, end_time = $6, registration_deadline = $7,
			registration_limit = $8, registration_fee = $9, form_fields = $10, tags = $11,
			updated_at = now()
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.Eligibility,
		e.StartTime, e.EndTime, e.RegistrationDeadline,
		e.RegistrationLimit, e.RegistrationFee, formFields, tags,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	if e.Type == model.EventTypeMerchandise {
		if _, err := tx.Exec(ctx, `DELETE FROM merchandise_items WHERE event_id = $1`, e.ID); err != nil {
			return fmt.Errorf("clear merchandise items: %w", err)
		}
		if err := insertItems(ctx, tx, e.ID, e.MerchandiseItems); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateStatus moves an event to a new stored status, conditional on its
// current status being one of from. Returns ErrInvalidTransition when the
// event exists but is not in an accepted state.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = ANY($3)`,
		id, to, allowed,
	)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check event exists: %w", err)
		}
		if !exists {
			return model.ErrNotFound
		}
		return model.ErrInvalidTransition
	}
	return nil
}

// IncrementViewCount bumps the detail-view counter. Best effort.
func (r *EventRepository) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE events SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment view count: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
