package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func memoryAppt(id string, start time.Time) *model.Appointment {
	return &model.Appointment{
		ID:              id,
		ProviderID:      "p1",
		StaffID:         model.StringPtr("s1"),
		ScheduledStart:  start,
		DurationMinutes: 30,
		ScheduledEnd:    model.EndFor(start, 30),
		Status:          model.StatusConfirmed,
	}
}

func TestMoveIfFreeNeverOverwritesCancel(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rule := booking.Rule{Capacity: 1}

	for i := 0; i < 200; i++ {
		store := NewMemoryStore()
		a := memoryAppt(fmt.Sprintf("a%d", i), base)
		if err := store.CommitIfFree(ctx, a, rule, nil); err != nil {
			t.Fatalf("CommitIfFree: %v", err)
		}

		var wg sync.WaitGroup
		var moveErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, moveErr = store.MoveIfFree(ctx, a.ID, a.Version, base.Add(time.Hour), rule, nil)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = store.Update(ctx, a.ID,
				func(cur model.Appointment) error {
					return model.CheckTransition(cur.Status, model.StatusCancelled)
				},
				func(cur *model.Appointment) { cur.Status = model.StatusCancelled },
				nil,
			)
		}()
		wg.Wait()

		if cancelErr != nil {
			t.Fatalf("cancel: %v", cancelErr)
		}
		if moveErr != nil && !errors.Is(moveErr, model.ErrStaleVersion) {
			t.Fatalf("move: %v", moveErr)
		}
		got, err := store.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != model.StatusCancelled {
			t.Fatalf("iteration %d: cancel was lost, status %s", i, got.Status)
		}
	}
}

func TestMoveIfFreeRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a := memoryAppt("a", base)
	if err := store.CommitIfFree(ctx, a, booking.Rule{Capacity: 1}, nil); err != nil {
		t.Fatalf("CommitIfFree: %v", err)
	}
	if _, err := store.Update(ctx, a.ID, nil, func(cur *model.Appointment) { cur.PaymentReference = "pi_1" }, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.MoveIfFree(ctx, a.ID, a.Version, base.Add(time.Hour), booking.Rule{Capacity: 1}, nil); !errors.Is(err, model.ErrStaleVersion) {
		t.Fatalf("expected stale version, got %v", err)
	}
}

func TestCommitIfFreeSeesRecordedOverrun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a := memoryAppt("a", base)
	if err := store.CommitIfFree(ctx, a, booking.Rule{Capacity: 2}, nil); err != nil {
		t.Fatalf("CommitIfFree: %v", err)
	}
	late := base.Add(50 * time.Minute)
	if _, err := store.Update(ctx, a.ID, nil, func(cur *model.Appointment) {
		cur.Status = model.StatusCompleted
		cur.ActualEnd = &late
	}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	err := store.CommitIfFree(ctx, memoryAppt("b", base.Add(30*time.Minute)), booking.Rule{Capacity: 2}, nil)
	if !errors.Is(err, booking.ErrStaffDoubleBooked) {
		t.Fatalf("expected staff conflict with the overrun, got %v", err)
	}
}
