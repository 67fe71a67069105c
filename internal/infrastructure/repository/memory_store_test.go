package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

func newPending(studentID, courseID int64, expiresAt time.Time) *domain.PendingRegistration {
	return &domain.PendingRegistration{
		RegistrationID: uuid.New(),
		StudentID:      studentID,
		CourseID:       courseID,
		Status:         domain.StatusCreated,
		CreatedAt:      time.Now().UTC(),
		ExpiresAt:      expiresAt,
		Version:        1,
	}
}

func TestMemoryCreatePendingEnforcesCapacity(t *testing.T) {
	store := NewMemoryStore()
	store.SaveCourse(&domain.Course{CourseID: 7, Name: "Physics", Capacity: 2, Price: 100, Currency: "usd"})
	repo := store.Registrations()
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour)

	if err := repo.CreatePending(ctx, newPending(1, 7, deadline)); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := repo.CreatePending(ctx, newPending(2, 7, deadline)); err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if err := repo.CreatePending(ctx, newPending(3, 7, deadline)); err != interfaces.ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestMemoryCreatePendingRejectsDuplicatePair(t *testing.T) {
	store := NewMemoryStore()
	store.SaveCourse(&domain.Course{CourseID: 7, Capacity: 5})
	repo := store.Registrations()
	ctx := context.Background()

	if err := repo.CreatePending(ctx, newPending(1, 7, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.CreatePending(ctx, newPending(1, 7, time.Now().Add(time.Hour))); err != interfaces.ErrDuplicateInFlight {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
}

func TestMemoryConcurrentCreateNeverOverbooks(t *testing.T) {
	store := NewMemoryStore()
	store.SaveCourse(&domain.Course{CourseID: 9, Capacity: 3})
	repo := store.Registrations()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(student int64) {
			defer wg.Done()
			_ = repo.CreatePending(context.Background(), newPending(student, 9, time.Now().Add(time.Hour)))
		}(i)
	}
	wg.Wait()

	held, _ := repo.CountInFlight(context.Background(), 9)
	if held != 3 {
		t.Fatalf("expected exactly 3 held seats, got %d", held)
	}
}

func TestMemoryOptimisticLockRejectsStaleVersion(t *testing.T) {
	store := NewMemoryStore()
	store.SaveCourse(&domain.Course{CourseID: 7, Capacity: 1})
	repo := store.Registrations()
	ctx := context.Background()

	reg := newPending(1, 7, time.Now().Add(time.Hour))
	if err := repo.CreatePending(ctx, reg); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := *reg
	first.Status = domain.StatusFailed
	first.Version++
	if err := repo.UpdateWithOptimisticLock(ctx, &first); err != nil {
		t.Fatalf("first update failed: %v", err)
	}

	second := *reg
	second.Status = domain.StatusAwaitingPayment
	second.Version++
	if err := repo.UpdateWithOptimisticLock(ctx, &second); err != interfaces.ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestMemoryListPastDeadlineOrdersAndLimits(t *testing.T) {
	store := NewMemoryStore()
	store.SaveCourse(&domain.Course{CourseID: 7, Capacity: 10})
	repo := store.Registrations()
	ctx := context.Background()
	now := time.Now()

	late := newPending(1, 7, now.Add(-time.Minute))
	later := newPending(2, 7, now.Add(-2*time.Minute))
	future := newPending(3, 7, now.Add(time.Hour))
	for _, r := range []*domain.PendingRegistration{late, later, future} {
		if err := repo.CreatePending(ctx, r); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	regs, err := repo.ListPastDeadline(ctx, now, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(regs) != 2 || regs[0].RegistrationID != later.RegistrationID {
		t.Fatalf("expected the two overdue registrations oldest first, got %+v", regs)
	}

	regs, _ = repo.ListPastDeadline(ctx, now, 1)
	if len(regs) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(regs))
	}
}

func TestMemoryEventDeduplicator(t *testing.T) {
	dedup := NewMemoryStore().EventDeduplicator(0)
	ctx := context.Background()

	first, _ := dedup.MarkProcessed(ctx, "evt_1")
	again, _ := dedup.MarkProcessed(ctx, "evt_1")
	if !first || again {
		t.Fatalf("expected first=true again=false, got %v %v", first, again)
	}

	_ = dedup.Forget(ctx, "evt_1")
	if retry, _ := dedup.MarkProcessed(ctx, "evt_1"); !retry {
		t.Fatal("forgotten event should be processable again")
	}
}

func TestMemoryEventDeduplicatorExpiresOldIDs(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	dedup := store.EventDeduplicator(time.Hour).(*memoryEventDeduplicator)
	dedup.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = dedup.MarkProcessed(ctx, "evt_old")
	now = now.Add(30 * time.Minute)
	_, _ = dedup.MarkProcessed(ctx, "evt_recent")

	now = now.Add(45 * time.Minute)
	if again, _ := dedup.MarkProcessed(ctx, "evt_recent"); again {
		t.Fatal("event inside the ttl should still be a duplicate")
	}
	if _, kept := store.events["evt_old"]; kept {
		t.Fatal("event older than the ttl should have been pruned")
	}
	if len(store.eventOrder) != 1 {
		t.Fatalf("expected one tracked event, got %d", len(store.eventOrder))
	}

	if first, _ := dedup.MarkProcessed(ctx, "evt_old"); !first {
		t.Fatal("expired event id should be accepted again")
	}
}
