package service

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/logger"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultPendingTTL = 15 * time.Minute

var _ serviceInterfaces.RegistrationService = (*RegistrationService)(nil)

type RegistrationConfig struct {
	// PendingTTL bounds how long a Created registration holds its seat
	// before a payment session is opened.
	PendingTTL         time.Duration
	MaxConflictRetries int
	Now                func() time.Time
}

type RegistrationService struct {
	studentRepo      interfaces.StudentRepository
	courseRepo       interfaces.CourseRepository
	registrationRepo interfaces.RegistrationRepository
	metrics          *metrics.Metrics
	cfg              RegistrationConfig
}

func NewRegistrationService(
	studentRepo interfaces.StudentRepository,
	courseRepo interfaces.CourseRepository,
	registrationRepo interfaces.RegistrationRepository,
	m *metrics.Metrics,
	cfg RegistrationConfig,
) *RegistrationService {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RegistrationService{
		studentRepo:      studentRepo,
		courseRepo:       courseRepo,
		registrationRepo: registrationRepo,
		metrics:          m,
		cfg:              cfg,
	}
}

func (s *RegistrationService) now() time.Time {
	return s.cfg.Now().UTC()
}

// CreatePendingRegistration reserves a seat for the pair. Seats are counted
// as confirmed enrollments plus in-flight registrations, recomputed on
// every call inside the store's transaction.
func (s *RegistrationService) CreatePendingRegistration(ctx context.Context, studentID, courseID int64) (*domain.PendingRegistration, error) {
	if studentID <= 0 || courseID <= 0 {
		return nil, apperrors.Clone(apperrors.ErrValidation, "student_id and course_id must be positive")
	}

	student, err := s.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load student")
	}
	if student == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("student %d not found", studentID))
	}

	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load course")
	}
	if course == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("course %d not found", courseID))
	}

	var reg *domain.PendingRegistration
	err = retryOnConflict(ctx, s.cfg.MaxConflictRetries, func() error {
		now := s.now()
		reg = &domain.PendingRegistration{
			RegistrationID: uuid.New(),
			StudentID:      studentID,
			CourseID:       courseID,
			Status:         domain.StatusCreated,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.cfg.PendingTTL),
			UpdatedAt:      now,
			Version:        1,
		}
		return s.registrationRepo.CreatePending(ctx, reg)
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"student_id": studentID,
			"course_id":  courseID,
		}).WithError(err).Info("Pending registration rejected")
		return nil, translateStoreError(err, "failed to create pending registration")
	}

	s.metrics.RecordTransition("", string(domain.StatusCreated))
	logger.WithFields(logrus.Fields{
		"registration_id": reg.RegistrationID,
		"student_id":      studentID,
		"course_id":       courseID,
		"expires_at":      reg.ExpiresAt,
	}).Info("Pending registration created")

	return reg, nil
}

// Commit turns an AwaitingPayment registration into an enrollment. Replaying
// it for a Confirmed registration returns the stored enrollment.
func (s *RegistrationService) Commit(ctx context.Context, registrationID uuid.UUID) (*domain.Enrollment, error) {
	var enrollment *domain.Enrollment

	err := retryOnConflict(ctx, s.cfg.MaxConflictRetries, func() error {
		reg, err := s.loadRegistration(ctx, registrationID)
		if err != nil {
			return err
		}

		if reg.Status == domain.StatusConfirmed {
			existing, err := s.registrationRepo.GetEnrollmentByRegistrationID(ctx, registrationID)
			if err != nil {
				return apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load enrollment")
			}
			if existing == nil {
				return apperrors.Clone(apperrors.ErrInternal, "confirmed registration has no enrollment")
			}
			enrollment = existing
			return nil
		}

		if reg.Status != domain.StatusAwaitingPayment {
			return invalidState(reg, "commit")
		}

		now := s.now()
		updated := *reg
		updated.Status = domain.StatusConfirmed
		updated.Version++
		updated.UpdatedAt = now

		candidate := &domain.Enrollment{
			EnrollmentID:   uuid.New(),
			RegistrationID: reg.RegistrationID,
			StudentID:      reg.StudentID,
			CourseID:       reg.CourseID,
			ConfirmedAt:    now,
		}
		if err := s.registrationRepo.Commit(ctx, &updated, candidate); err != nil {
			return err
		}

		enrollment = candidate
		s.metrics.RecordTransition(string(reg.Status), string(domain.StatusConfirmed))
		logger.WithFields(logrus.Fields{
			"registration_id": reg.RegistrationID,
			"session_id":      reg.SessionID(),
			"enrollment_id":   candidate.EnrollmentID,
		}).Info("Registration confirmed")
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to commit registration")
	}

	return enrollment, nil
}

// Release gives the held seat back by moving the registration to the
// terminal status implied by reason. Repeating a release that already
// produced that status is a no-op.
func (s *RegistrationService) Release(ctx context.Context, registrationID uuid.UUID, reason domain.ReleaseReason) (*domain.PendingRegistration, error) {
	target := reason.TargetStatus()
	var released *domain.PendingRegistration

	err := retryOnConflict(ctx, s.cfg.MaxConflictRetries, func() error {
		reg, err := s.loadRegistration(ctx, registrationID)
		if err != nil {
			return err
		}

		if reg.Status == target {
			released = reg
			return nil
		}
		if !reg.Status.CanTransitionTo(target) {
			return invalidState(reg, "release")
		}

		updated := *reg
		updated.Status = target
		updated.FailureReason = string(reason)
		updated.Version++
		updated.UpdatedAt = s.now()

		if err := s.registrationRepo.UpdateWithOptimisticLock(ctx, &updated); err != nil {
			return err
		}

		released = &updated
		s.metrics.RecordTransition(string(reg.Status), string(target))
		logger.WithFields(logrus.Fields{
			"registration_id": reg.RegistrationID,
			"session_id":      reg.SessionID(),
			"from":            reg.Status,
			"to":              target,
			"reason":          reason,
		}).Info("Registration released")
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to release registration")
	}

	return released, nil
}

func (s *RegistrationService) GetRegistration(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error) {
	reg, err := s.loadRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *RegistrationService) GetSeatAvailability(ctx context.Context, courseID int64) (*domain.SeatAvailability, error) {
	course, err := s.courseRepo.GetByID(ctx, courseID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load course")
	}
	if course == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("course %d not found", courseID))
	}

	confirmed, err := s.courseRepo.GetActiveEnrollmentCount(ctx, courseID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to count enrollments")
	}
	inFlight, err := s.registrationRepo.CountInFlight(ctx, courseID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to count in-flight registrations")
	}

	available := course.Capacity - confirmed - inFlight
	if available < 0 {
		available = 0
	}

	return &domain.SeatAvailability{
		CourseID:  courseID,
		Capacity:  course.Capacity,
		Confirmed: confirmed,
		InFlight:  inFlight,
		Available: available,
	}, nil
}

func (s *RegistrationService) loadRegistration(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error) {
	reg, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load registration")
	}
	if reg == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("registration %s not found", registrationID))
	}
	return reg, nil
}

func invalidState(reg *domain.PendingRegistration, op string) error {
	return apperrors.Clone(apperrors.ErrInvalidState,
		fmt.Sprintf("cannot %s registration in status %s", op, reg.Status))
}

func isInvalidState(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidState)
}
