package service

import (
	"io"
	"log/slog"
	"time"

	"github.com/felicity-portal/enrollment/internal/model"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore, n Notifier) *Service {
	return New(Deps{
		Events:        fakeEvents{store},
		Registrations: fakeRegs{store},
		Notifier:      n,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:         func() time.Time { return testTime },
	})
}

// openAttendanceEvent returns a PUBLISHED attendance event accepting
// registrations at testTime.
func openAttendanceEvent(id string, limit int) model.Event {
	return model.Event{
		ID:                   id,
		OrganizerID:          "org-1",
		Name:                 "Robotics Workshop",
		Description:          "Hands-on session",
		Type:                 model.EventTypeAttendance,
		Eligibility:          model.EligibilityAll,
		Status:               model.EventPublished,
		StartTime:            testTime.Add(24 * time.Hour),
		EndTime:              testTime.Add(30 * time.Hour),
		RegistrationDeadline: testTime.Add(12 * time.Hour),
		RegistrationLimit:    limit,
	}
}

// openMerchEvent returns a PUBLISHED merchandise event with a single item.
func openMerchEvent(id string, stock, purchaseLimit int, price float64) model.Event {
	e := openAttendanceEvent(id, 0)
	e.Name = "Festival Hoodie Drop"
	e.Type = model.EventTypeMerchandise
	e.MerchandiseItems = []model.MerchandiseItem{{
		ID:            id + "-item-1",
		EventID:       id,
		Name:          "Hoodie",
		Size:          "L",
		Price:         price,
		Stock:         stock,
		PurchaseLimit: purchaseLimit,
	}}
	return e
}
