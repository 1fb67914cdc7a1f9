package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/notifier"
)

// fakeStore is an in-memory implementation of EventStore and
// RegistrationStore. Its write operations honor the same conditional
// semantics the SQL layer provides (capacity guard, conditional stock
// decrement, one live claim per participant), guarded by a single mutex
// so concurrent test goroutines exercise the invariants.
type fakeStore struct {
	mu     sync.Mutex
	events map[string]*model.Event
	regs   map[string]*model.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[string]*model.Event{},
		regs:   map[string]*model.Registration{},
	}
}

// fakeEvents and fakeRegs expose the shared store under the two service
// interfaces, which both declare a GetByID method.
type fakeEvents struct{ *fakeStore }

type fakeRegs struct{ *fakeStore }

func (f *fakeStore) addEvent(e model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = &e
}

func (f *fakeStore) event(id string) model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.events[id]
}

func (f *fakeStore) registration(id string) model.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneReg(f.regs[id])
}

func cloneReg(reg *model.Registration) model.Registration {
	out := *reg
	if reg.Order != nil {
		order := *reg.Order
		order.Lines = append([]model.OrderLine(nil), reg.Order.Lines...)
		out.Order = &order
	}
	return out
}

// ─── EventStore ───────────────────────────────────────────────────────────────

func (f fakeEvents) Create(ctx context.Context, e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *e
	f.events[e.ID] = &stored
	return nil
}

func (f fakeEvents) GetByID(ctx context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *e
	out.MerchandiseItems = append([]model.MerchandiseItem(nil), e.MerchandiseItems...)
	return &out, nil
}

func (f fakeEvents) List(ctx context.Context, filter model.EventFilter) ([]model.Event, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, e := range f.events {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.OrganizerID != "" && e.OrganizerID != filter.OrganizerID {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f fakeEvents) Update(ctx context.Context, e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[e.ID]; !ok {
		return model.ErrNotFound
	}
	stored := *e
	f.events[e.ID] = &stored
	return nil
}

func (f fakeEvents) UpdateStatus(ctx context.Context, id string, from []model.EventStatus, to model.EventStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return model.ErrNotFound
	}
	for _, s := range from {
		if e.Status == s {
			e.Status = to
			return nil
		}
	}
	return model.ErrInvalidTransition
}

func (f fakeEvents) IncrementViewCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		e.ViewCount++
	}
	return nil
}

// ─── RegistrationStore ────────────────────────────────────────────────────────

func (f *fakeStore) hasLiveClaim(eventID, participantID string) bool {
	for _, reg := range f.regs {
		if reg.EventID == eventID && reg.ParticipantID == participantID && !reg.Status.Terminal() {
			return true
		}
	}
	return false
}

func (f fakeRegs) Register(ctx context.Context, reg *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[reg.EventID]
	if !ok {
		return model.ErrNotFound
	}
	if e.RegistrationLimit > 0 && e.RegistrationCount >= e.RegistrationLimit {
		return model.ErrEventFull
	}
	if f.hasLiveClaim(reg.EventID, reg.ParticipantID) {
		return model.ErrDuplicateRegistration
	}
	stored := cloneReg(reg)
	f.regs[reg.ID] = &stored
	e.RegistrationCount++
	e.FormLocked = true
	return nil
}

func (f fakeRegs) CreatePendingOrder(ctx context.Context, reg *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[reg.EventID]
	if !ok {
		return model.ErrNotFound
	}
	if f.hasLiveClaim(reg.EventID, reg.ParticipantID) {
		return model.ErrDuplicateRegistration
	}
	for _, line := range reg.Order.Lines {
		item := e.Item(line.ItemID)
		if item == nil || item.Stock < line.Quantity {
			return model.ErrInsufficientStock
		}
	}
	for _, line := range reg.Order.Lines {
		e.Item(line.ItemID).Stock -= line.Quantity
	}
	stored := cloneReg(reg)
	f.regs[reg.ID] = &stored
	return nil
}

func (f fakeRegs) Cancel(ctx context.Context, reg *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[reg.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Status != reg.Status {
		if stored.Status == model.RegistrationCancelled {
			return model.ErrAlreadyCancelled
		}
		return model.ErrStatusMismatch
	}
	wasConfirmed := stored.Status == model.RegistrationConfirmed
	stored.Status = model.RegistrationCancelled
	if wasConfirmed {
		if e, ok := f.events[stored.EventID]; ok && e.RegistrationCount > 0 {
			e.RegistrationCount--
		}
	}
	return nil
}

func (f fakeRegs) SetPaymentProof(ctx context.Context, id, proofRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[id]
	if !ok {
		return model.ErrNotFound
	}
	stored.Order.PaymentProofRef = proofRef
	stored.Order.ApprovalStatus = model.ApprovalPending
	return nil
}

func (f fakeRegs) Approve(ctx context.Context, reg *model.Registration, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[reg.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Order.ApprovalStatus == model.ApprovalApproved {
		return model.ErrAlreadyApproved
	}
	if stored.Status.Terminal() {
		return model.ErrStatusMismatch
	}
	stored.Status = model.RegistrationConfirmed
	stored.PaymentStatus = model.PaymentCompleted
	stored.Order.ApprovalStatus = model.ApprovalApproved
	stored.Order.ApprovalNote = note
	stored.TicketID = reg.TicketID
	if e, ok := f.events[stored.EventID]; ok {
		e.RegistrationCount++
		e.Revenue += stored.Order.TotalAmount
	}
	return nil
}

func (f fakeRegs) Reject(ctx context.Context, reg *model.Registration, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[reg.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Status == model.RegistrationRejected || stored.Order.ApprovalStatus == model.ApprovalApproved {
		return model.ErrAlreadyApproved
	}
	stored.Status = model.RegistrationRejected
	stored.PaymentStatus = model.PaymentFailed
	stored.Order.ApprovalStatus = model.ApprovalRejected
	stored.Order.ApprovalNote = note
	if e, ok := f.events[stored.EventID]; ok {
		for _, line := range stored.Order.Lines {
			if item := e.Item(line.ItemID); item != nil {
				item.Stock += line.Quantity
			}
		}
	}
	return nil
}

func (f fakeRegs) CheckIn(ctx context.Context, id, organizerID string, now time.Time) (model.Attendance, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[id]
	if !ok {
		return model.Attendance{}, false, model.ErrNotFound
	}
	if stored.Attendance.Checked {
		return stored.Attendance, false, nil
	}
	if stored.Status != model.RegistrationConfirmed {
		return model.Attendance{}, false, model.ErrStatusMismatch
	}
	stored.Attendance = model.Attendance{Checked: true, Timestamp: now, CheckedBy: organizerID}
	return stored.Attendance, true, nil
}

func (f fakeRegs) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.regs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := cloneReg(stored)
	return &out, nil
}

func (f fakeRegs) GetByTicketID(ctx context.Context, ticketID string) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.regs {
		if reg.TicketID == ticketID && ticketID != "" {
			out := cloneReg(reg)
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f fakeRegs) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, reg := range f.regs {
		if reg.EventID == eventID {
			out = append(out, cloneReg(reg))
		}
	}
	return out, nil
}

func (f fakeRegs) ListByParticipant(ctx context.Context, participantID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, reg := range f.regs {
		if reg.ParticipantID == participantID {
			out = append(out, cloneReg(reg))
		}
	}
	return out, nil
}

func (f fakeRegs) ListPendingPayments(ctx context.Context, organizerID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Registration
	for _, reg := range f.regs {
		if reg.Order == nil || reg.Order.ApprovalStatus != model.ApprovalPending || reg.Order.PaymentProofRef == "" {
			continue
		}
		if e, ok := f.events[reg.EventID]; ok && e.OrganizerID == organizerID {
			out = append(out, cloneReg(reg))
		}
	}
	return out, nil
}

// fakeNotifier records published messages; fail makes every publish error.
type fakeNotifier struct {
	mu      sync.Mutex
	tickets []notifier.TicketIssued
	events  []notifier.EventPublished
	fail    bool
}

func (n *fakeNotifier) PublishTicketIssued(ctx context.Context, msg notifier.TicketIssued) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.tickets = append(n.tickets, msg)
	return nil
}

func (n *fakeNotifier) PublishEventPublished(ctx context.Context, msg notifier.EventPublished) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.events = append(n.events, msg)
	return nil
}

func (n *fakeNotifier) ticketCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tickets)
}
