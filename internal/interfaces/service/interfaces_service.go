package service

import (
	"context"
	domain "course-checkout/internal/domain/registration"

	"github.com/google/uuid"
)

// CreateStudentRequest creates a student record.
type CreateStudentRequest struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=100"`
	LastName  string `json:"last_name" validate:"required,notblank,max=100"`
}

type StudentService interface {
	CreateStudent(ctx context.Context, req *CreateStudentRequest) (*domain.Student, error)
	GetStudent(ctx context.Context, id int64) (*domain.Student, error)
}

type RegistrationService interface {
	CreatePendingRegistration(ctx context.Context, studentID, courseID int64) (*domain.PendingRegistration, error)
	Commit(ctx context.Context, registrationID uuid.UUID) (*domain.Enrollment, error)
	Release(ctx context.Context, registrationID uuid.UUID, reason domain.ReleaseReason) (*domain.PendingRegistration, error)
	GetRegistration(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error)
	GetSeatAvailability(ctx context.Context, courseID int64) (*domain.SeatAvailability, error)
}

// PaymentCoordinator drives a registration through its payment lifecycle.
type PaymentCoordinator interface {
	StartPaymentSession(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, *domain.PaymentSession, error)
	Confirm(ctx context.Context, registrationID uuid.UUID) (*domain.Enrollment, error)
	Cancel(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error)
	Poll(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error)
	GetRegistrationStatus(ctx context.Context, registrationID uuid.UUID) (*domain.RegistrationStatusResponse, error)
	OnGatewayEvent(ctx context.Context, event domain.GatewayEvent) error
	SweepExpired(ctx context.Context) (int, error)
}

type ReconciliationService interface {
	Report(ctx context.Context, reg *domain.PendingRegistration, sessionID, reason string) error
	List(ctx context.Context, limit, offset int) ([]*domain.ReconciliationFailure, error)
}
