package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/cache"
	"course-checkout/internal/infrastructure/gateway"
	"course-checkout/internal/infrastructure/repository"
	apperrors "course-checkout/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires the services over the in-memory store and the fake gateway.
// It is seeded with student 1 and course 101 (capacity 1, 5000 usd).
type harness struct {
	store          *repository.MemoryStore
	gateway        *gateway.FakeGateway
	cache          *cache.MemoryCache
	clock          *fakeClock
	registrations  *RegistrationService
	reconciliation *ReconciliationService
	coordinator    *PaymentCoordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   repository.NewMemoryStore(),
		gateway: gateway.NewFakeGateway(),
		cache:   cache.NewMemoryCache(),
		clock:   newFakeClock(),
	}
	h.store.SeedDemoData()
	h.gateway.SetClock(h.clock.Now)

	h.registrations = NewRegistrationService(
		h.store.Students(), h.store.Courses(), h.store.Registrations(), nil,
		RegistrationConfig{PendingTTL: 15 * time.Minute, Now: h.clock.Now},
	)
	h.reconciliation = NewReconciliationService(h.store.Reconciliations(), nil, h.clock.Now)
	h.coordinator = NewPaymentCoordinator(
		h.registrations, h.store.Registrations(), h.store.Courses(),
		h.gateway, h.cache, h.reconciliation, nil,
		CoordinatorConfig{SessionTTL: 30 * time.Minute, PollTimeout: time.Second, Now: h.clock.Now},
	)
	return h
}

func (h *harness) setCapacity(courseID int64, capacity int) {
	h.store.SaveCourse(&domain.Course{
		CourseID: courseID,
		Name:     "Course",
		Capacity: capacity,
		Price:    5000,
		Currency: "usd",
	})
}

func (h *harness) addStudent(t *testing.T, first string) int64 {
	t.Helper()
	student := &domain.Student{FirstName: first, LastName: "Test", EnrollmentDate: h.clock.Now()}
	if err := h.store.Students().Create(context.Background(), student); err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}
	return student.StudentID
}

// awaitingPayment creates a registration for the pair and opens its session.
func (h *harness) awaitingPayment(t *testing.T, studentID, courseID int64) (*domain.PendingRegistration, *domain.PaymentSession) {
	t.Helper()
	ctx := context.Background()

	reg, err := h.registrations.CreatePendingRegistration(ctx, studentID, courseID)
	if err != nil {
		t.Fatalf("Expected registration to be created, got %v", err)
	}
	reg, session, err := h.coordinator.StartPaymentSession(ctx, reg.RegistrationID)
	if err != nil {
		t.Fatalf("Expected payment session to start, got %v", err)
	}
	return reg, session
}

func (h *harness) status(t *testing.T, reg *domain.PendingRegistration) *domain.PendingRegistration {
	t.Helper()
	current, err := h.registrations.GetRegistration(context.Background(), reg.RegistrationID)
	if err != nil {
		t.Fatalf("Failed to load registration: %v", err)
	}
	return current
}

func (h *harness) failures(t *testing.T) []*domain.ReconciliationFailure {
	t.Helper()
	failures, err := h.reconciliation.List(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("Failed to list reconciliation failures: %v", err)
	}
	return failures
}

func assertCode(t *testing.T, err error, want *apperrors.Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", want.Code)
	}
	if !errors.Is(err, want) {
		t.Fatalf("Expected %s error, got %v (%s)", want.Code, err, apperrors.FromError(err).Code)
	}
}
