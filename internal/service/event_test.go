package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
)

// fakeCache stores JSON-encoded values, matching what the Redis-backed
// cache does on the wire.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return errors.New("cache miss")
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}

func newTestServiceWithCache(store *fakeStore, cache ListingCache) *Service {
	return New(Deps{
		Events:        fakeEvents{store},
		Registrations: fakeRegs{store},
		Cache:         cache,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:         func() time.Time { return testTime },
	})
}

func draftInput() CreateEventInput {
	return CreateEventInput{
		Name:                 "Robotics Workshop",
		Description:          "Hands-on session",
		Type:                 model.EventTypeAttendance,
		StartTime:            testTime.Add(24 * time.Hour),
		EndTime:              testTime.Add(30 * time.Hour),
		RegistrationDeadline: testTime.Add(12 * time.Hour),
	}
}

func TestCreateEventStartsAsDraft(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)

	event, err := svc.CreateEvent(context.Background(), "org-1", draftInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.Status != model.EventDraft {
		t.Fatalf("expected DRAFT, got %s", event.Status)
	}
	if event.ID == "" || event.OrganizerID != "org-1" {
		t.Fatalf("identity not set: %+v", event)
	}
	if event.Eligibility != model.EligibilityAll {
		t.Fatalf("expected default eligibility ALL, got %s", event.Eligibility)
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateEventInput)
	}{
		{"blank name", func(in *CreateEventInput) { in.Name = "  " }},
		{"unknown type", func(in *CreateEventInput) { in.Type = "RAFFLE" }},
		{"negative limit", func(in *CreateEventInput) { in.RegistrationLimit = -1 }},
		{"negative fee", func(in *CreateEventInput) { in.RegistrationFee = -5 }},
		{"unnamed item", func(in *CreateEventInput) {
			in.Type = model.EventTypeMerchandise
			in.MerchandiseItems = []model.MerchandiseItem{{Name: "", Price: 10, Stock: 1}}
		}},
		{"negative stock", func(in *CreateEventInput) {
			in.Type = model.EventTypeMerchandise
			in.MerchandiseItems = []model.MerchandiseItem{{Name: "Cap", Price: 10, Stock: -1}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newFakeStore(), nil)
			in := draftInput()
			tt.mutate(&in)

			var verr *ValidationError
			if _, err := svc.CreateEvent(context.Background(), "org-1", in); !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateEventDefaultsPurchaseLimit(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	in := draftInput()
	in.Type = model.EventTypeMerchandise
	in.MerchandiseItems = []model.MerchandiseItem{{Name: "Cap", Price: 10, Stock: 5}}

	event, err := svc.CreateEvent(context.Background(), "org-1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := event.MerchandiseItems[0].PurchaseLimit; got != 1 {
		t.Fatalf("expected purchase limit default 1, got %d", got)
	}
}

func TestPublishEvent(t *testing.T) {
	store := newFakeStore()
	notif := &fakeNotifier{}
	svc := newTestService(store, notif)
	event, err := svc.CreateEvent(context.Background(), "org-1", draftInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	published, err := svc.PublishEvent(context.Background(), "org-1", event.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != model.EventPublished {
		t.Fatalf("expected PUBLISHED, got %s", published.Status)
	}
	if len(notif.events) != 1 || notif.events[0].EventID != event.ID {
		t.Fatalf("announcement not published: %+v", notif.events)
	}

	// Publishing twice must fail.
	if _, err := svc.PublishEvent(context.Background(), "org-1", event.ID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on republish, got %v", err)
	}
}

func TestPublishEventRequiresCompleteDraft(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	in := draftInput()
	in.Description = ""
	event, err := svc.CreateEvent(context.Background(), "org-1", in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var verr *ValidationError
	if _, err := svc.PublishEvent(context.Background(), "org-1", event.ID); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := store.event(event.ID).Status; got != model.EventDraft {
		t.Fatalf("failed publish changed status to %s", got)
	}
}

func TestUpdateEventDraftAcceptsAllFields(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	event, err := svc.CreateEvent(context.Background(), "org-1", draftInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Robotics Bootcamp"
	fee := 99.0
	fields := []model.FormField{{Name: "College", Type: "text", Required: true}}
	updated, err := svc.UpdateEvent(context.Background(), "org-1", event.ID, UpdateEventInput{
		Name:            &name,
		RegistrationFee: &fee,
		FormFields:      &fields,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.RegistrationFee != fee || len(updated.FormFields) != 1 {
		t.Fatalf("draft update not applied: %+v", updated)
	}
}

func TestUpdateEventPublishedDropsRestrictedFields(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 10))
	svc := newTestService(store, nil)

	name := "Renamed"
	desc := "New description"
	limit := 50
	updated, err := svc.UpdateEvent(context.Background(), "org-1", "ev-1", UpdateEventInput{
		Name:              &name,
		Description:       &desc,
		RegistrationLimit: &limit,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Robotics Workshop" {
		t.Fatalf("name must not change after publication, got %q", updated.Name)
	}
	if updated.Description != desc || updated.RegistrationLimit != limit {
		t.Fatalf("permitted fields not applied: %+v", updated)
	}
}

func TestUpdateEventRefusedAfterClose(t *testing.T) {
	store := newFakeStore()
	e := openAttendanceEvent("ev-1", 0)
	e.Status = model.EventClosed
	store.addEvent(e)
	svc := newTestService(store, nil)

	desc := "too late"
	_, err := svc.UpdateEvent(context.Background(), "org-1", "ev-1", UpdateEventInput{Description: &desc})
	if !errors.Is(err, model.ErrEventNotEditable) {
		t.Fatalf("expected not editable, got %v", err)
	}
}

func TestUpdateEventLockedFormRejectsFieldChanges(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 0))
	svc := newTestService(store, nil)
	if _, err := svc.Register(context.Background(), Participant{ID: "p-1", Type: model.ParticipantInternal}, "ev-1", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	fields := []model.FormField{{Name: "Shirt size", Type: "text"}}
	_, err := svc.UpdateEvent(context.Background(), "org-1", "ev-1", UpdateEventInput{FormFields: &fields})
	if !errors.Is(err, model.ErrFormLocked) {
		t.Fatalf("expected form locked, got %v", err)
	}
}

func TestUpdateEventOwnerOnly(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 0))
	svc := newTestService(store, nil)

	desc := "hijack"
	_, err := svc.UpdateEvent(context.Background(), "org-2", "ev-1", UpdateEventInput{Description: &desc})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateEventStatusTransitions(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 0))
	svc := newTestService(store, nil)

	event, err := svc.UpdateEventStatus(context.Background(), "org-1", "ev-1", model.EventOngoing)
	if err != nil {
		t.Fatalf("to ONGOING: %v", err)
	}
	if event.Status != model.EventOngoing {
		t.Fatalf("expected ONGOING, got %s", event.Status)
	}
	if _, err := svc.UpdateEventStatus(context.Background(), "org-1", "ev-1", model.EventClosed); err != nil {
		t.Fatalf("to CLOSED: %v", err)
	}

	// CLOSED is not a valid source for further organizer transitions.
	if _, err := svc.UpdateEventStatus(context.Background(), "org-1", "ev-1", model.EventCancelled); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	var verr *ValidationError
	if _, err := svc.UpdateEventStatus(context.Background(), "org-1", "ev-1", model.EventDraft); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for DRAFT target, got %v", err)
	}
}

func TestGetEventBumpsViewCountAndAppliesEffectiveStatus(t *testing.T) {
	store := newFakeStore()
	e := openAttendanceEvent("ev-1", 0)
	e.EndTime = testTime.Add(-time.Hour)
	store.addEvent(e)
	svc := newTestService(store, nil)

	detail, err := svc.GetEvent(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Event.Status != model.EventCompleted {
		t.Fatalf("expected effective COMPLETED, got %s", detail.Event.Status)
	}
	if got := store.event("ev-1").ViewCount; got != 1 {
		t.Fatalf("expected view count 1, got %d", got)
	}
	if got := store.event("ev-1").Status; got != model.EventPublished {
		t.Fatalf("effective status must not be persisted, stored %s", got)
	}
}

func TestGetEventReportsRegistrationOpen(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Event)
		want   bool
	}{
		{"open", func(e *model.Event) {}, true},
		{"draft", func(e *model.Event) { e.Status = model.EventDraft }, false},
		{"past deadline", func(e *model.Event) { e.RegistrationDeadline = testTime.Add(-time.Minute) }, false},
		{"past end time", func(e *model.Event) { e.EndTime = testTime.Add(-time.Hour) }, false},
		{"full", func(e *model.Event) {
			e.RegistrationLimit = 1
			e.RegistrationCount = 1
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			e := openAttendanceEvent("ev-1", 0)
			tt.mutate(&e)
			store.addEvent(e)
			svc := newTestService(store, nil)

			detail, err := svc.GetEvent(context.Background(), "ev-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if detail.RegistrationOpen != tt.want {
				t.Fatalf("registration_open = %v, want %v", detail.RegistrationOpen, tt.want)
			}
		})
	}
}

func TestListEventsServesFromCache(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 0))
	cache := newFakeCache()
	svc := newTestServiceWithCache(store, cache)

	filter := model.EventFilter{Status: model.EventPublished}
	first, err := svc.ListEvents(context.Background(), filter)
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first.Events) != 1 || first.Total != 1 {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if cache.hits != 0 {
		t.Fatalf("first list must miss the cache, hits %d", cache.hits)
	}

	second, err := svc.ListEvents(context.Background(), filter)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if cache.hits != 1 {
		t.Fatalf("second list must hit the cache, hits %d", cache.hits)
	}
	if len(second.Events) != 1 {
		t.Fatalf("unexpected cached page: %+v", second)
	}
}

func TestListEventsAppliesEffectiveStatusAfterCacheRetrieval(t *testing.T) {
	store := newFakeStore()
	e := openAttendanceEvent("ev-1", 0)
	e.EndTime = testTime.Add(-time.Hour)
	store.addEvent(e)
	cache := newFakeCache()
	svc := newTestServiceWithCache(store, cache)

	filter := model.EventFilter{}
	for i := 0; i < 2; i++ {
		page, err := svc.ListEvents(context.Background(), filter)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if page.Events[0].Status != model.EventCompleted {
			t.Fatalf("expected effective COMPLETED, got %s", page.Events[0].Status)
		}
	}
	if cache.hits != 1 {
		t.Fatalf("expected one cache hit, got %d", cache.hits)
	}
}

func TestWriteInvalidatesListingCache(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	svc := newTestServiceWithCache(store, cache)

	if _, err := svc.ListEvents(context.Background(), model.EventFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected one cached page, got %d", len(cache.entries))
	}
	if _, err := svc.CreateEvent(context.Background(), "org-1", draftInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatalf("create must invalidate listings, %d entries remain", len(cache.entries))
	}
}

func TestListEventRegistrationsOwnerOnly(t *testing.T) {
	store := newFakeStore()
	store.addEvent(openAttendanceEvent("ev-1", 0))
	svc := newTestService(store, nil)
	if _, err := svc.Register(context.Background(), Participant{ID: "p-1", Type: model.ParticipantInternal}, "ev-1", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	regs, err := svc.ListEventRegistrations(context.Background(), "org-1", "ev-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(regs))
	}

	if _, err := svc.ListEventRegistrations(context.Background(), "org-2", "ev-1"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
