package interfaces

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrVersionConflict is returned when an optimistic version guard matched no row.
	ErrVersionConflict = errors.New("version conflict")
	// ErrCapacityExceeded is returned when no seat is left for the course.
	ErrCapacityExceeded = errors.New("course capacity exceeded")
	// ErrDuplicateInFlight is returned when the pair already has an in-flight registration.
	ErrDuplicateInFlight = errors.New("registration already in flight")
	// ErrAlreadyEnrolled is returned when the pair already has an enrollment.
	ErrAlreadyEnrolled = errors.New("student already enrolled")
)

// Lookups return (nil, nil) when the row does not exist.

type StudentRepository interface {
	Create(ctx context.Context, student *domain.Student) error
	GetByID(ctx context.Context, id int64) (*domain.Student, error)
}

type CourseRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Course, error)
	GetActiveEnrollmentCount(ctx context.Context, courseID int64) (int, error)
}

type RegistrationRepository interface {
	// CreatePending inserts reg after checking seats and duplicates as one
	// atomic step. Returns ErrCapacityExceeded, ErrDuplicateInFlight,
	// ErrAlreadyEnrolled or ErrVersionConflict.
	CreatePending(ctx context.Context, reg *domain.PendingRegistration) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingRegistration, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.PendingRegistration, error)
	// UpdateWithOptimisticLock persists reg if the stored version equals
	// reg.Version-1; callers bump Version before calling.
	UpdateWithOptimisticLock(ctx context.Context, reg *domain.PendingRegistration) error
	// Commit moves reg to Confirmed and inserts enrollment in one transaction.
	Commit(ctx context.Context, reg *domain.PendingRegistration, enrollment *domain.Enrollment) error
	GetEnrollmentByRegistrationID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)
	CountInFlight(ctx context.Context, courseID int64) (int, error)
	ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]*domain.PendingRegistration, error)
}

type ReconciliationRepository interface {
	Create(ctx context.Context, failure *domain.ReconciliationFailure) error
	List(ctx context.Context, limit, offset int) ([]*domain.ReconciliationFailure, error)
}

// EventDeduplicator remembers processed gateway event ids.
type EventDeduplicator interface {
	// MarkProcessed reports true the first time eventID is seen.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}
