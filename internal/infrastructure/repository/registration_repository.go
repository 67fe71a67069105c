package repository

import (
	"context"
	"errors"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ interfaces.RegistrationRepository = (*RegistrationRepository)(nil)

// RegistrationRepository implements RegistrationRepository using GORM
type RegistrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository creates a new GORM registration repository
func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{
		db: db,
	}
}

// CreatePending counts held seats and in-flight duplicates, inserts the
// registration and bumps the course version read at the start, all in one
// transaction. A concurrent writer on the same course makes the bump match
// no row and the whole insert rolls back with ErrVersionConflict.
func (r *RegistrationRepository) CreatePending(ctx context.Context, reg *domain.PendingRegistration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course domain.Course
		if err := tx.Select("course_id", "capacity", "version").
			First(&course, "course_id = ?", reg.CourseID).Error; err != nil {
			return err
		}

		var enrolled int64
		if err := tx.Model(&domain.Enrollment{}).
			Where("student_id = ? AND course_id = ?", reg.StudentID, reg.CourseID).
			Count(&enrolled).Error; err != nil {
			return err
		}
		if enrolled > 0 {
			return interfaces.ErrAlreadyEnrolled
		}

		var duplicates int64
		if err := tx.Model(&domain.PendingRegistration{}).
			Where("student_id = ? AND course_id = ? AND status IN ?", reg.StudentID, reg.CourseID, domain.InFlightStatuses).
			Count(&duplicates).Error; err != nil {
			return err
		}
		if duplicates > 0 {
			return interfaces.ErrDuplicateInFlight
		}

		held, err := countHeldSeats(tx, reg.CourseID)
		if err != nil {
			return err
		}
		if held >= int64(course.Capacity) {
			return interfaces.ErrCapacityExceeded
		}

		if err := tx.Create(reg).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return interfaces.ErrDuplicateInFlight
			}
			return err
		}

		result := tx.Exec("UPDATE courses SET version = version + 1, updated_at = ? WHERE course_id = ? AND version = ?",
			time.Now().UTC(), course.CourseID, course.Version)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return interfaces.ErrVersionConflict
		}

		return nil
	})
}

func countHeldSeats(tx *gorm.DB, courseID int64) (int64, error) {
	var confirmed, inFlight int64
	if err := tx.Model(&domain.Enrollment{}).
		Where("course_id = ?", courseID).
		Count(&confirmed).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&domain.PendingRegistration{}).
		Where("course_id = ? AND status IN ?", courseID, domain.InFlightStatuses).
		Count(&inFlight).Error; err != nil {
		return 0, err
	}
	return confirmed + inFlight, nil
}

// GetByID retrieves a registration by id
func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingRegistration, error) {
	var reg domain.PendingRegistration
	err := r.db.WithContext(ctx).First(&reg, "registration_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// GetBySessionID retrieves the registration bound to a payment session
func (r *RegistrationRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.PendingRegistration, error) {
	var reg domain.PendingRegistration
	err := r.db.WithContext(ctx).First(&reg, "payment_session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// UpdateWithOptimisticLock updates a registration using optimistic locking
func (r *RegistrationRepository) UpdateWithOptimisticLock(ctx context.Context, reg *domain.PendingRegistration) error {
	result := r.db.WithContext(ctx).Model(&domain.PendingRegistration{}).
		Where("registration_id = ? AND version = ?", reg.RegistrationID, reg.Version-1).
		Updates(map[string]interface{}{
			"status":             reg.Status,
			"payment_session_id": reg.PaymentSessionID,
			"failure_reason":     reg.FailureReason,
			"expires_at":         reg.ExpiresAt,
			"version":            reg.Version,
			"updated_at":         reg.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return interfaces.ErrVersionConflict
	}

	return nil
}

// Commit flips an awaiting registration to confirmed and inserts its
// enrollment. Either both rows change or neither does.
func (r *RegistrationRepository) Commit(ctx context.Context, reg *domain.PendingRegistration, enrollment *domain.Enrollment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course domain.Course
		if err := tx.Select("course_id", "capacity").
			First(&course, "course_id = ?", reg.CourseID).Error; err != nil {
			return err
		}

		var confirmed int64
		if err := tx.Model(&domain.Enrollment{}).
			Where("course_id = ?", reg.CourseID).
			Count(&confirmed).Error; err != nil {
			return err
		}
		if confirmed >= int64(course.Capacity) {
			return interfaces.ErrCapacityExceeded
		}

		result := tx.Model(&domain.PendingRegistration{}).
			Where("registration_id = ? AND version = ? AND status = ?",
				reg.RegistrationID, reg.Version-1, domain.StatusAwaitingPayment).
			Updates(map[string]interface{}{
				"status":     domain.StatusConfirmed,
				"version":    reg.Version,
				"updated_at": reg.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return interfaces.ErrVersionConflict
		}

		if err := tx.Create(enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return interfaces.ErrAlreadyEnrolled
			}
			return err
		}

		return nil
	})
}

// GetEnrollmentByRegistrationID retrieves the enrollment created by a registration
func (r *RegistrationRepository) GetEnrollmentByRegistrationID(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	var enrollment domain.Enrollment
	err := r.db.WithContext(ctx).First(&enrollment, "registration_id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &enrollment, nil
}

// CountInFlight counts registrations currently holding a seat on the course
func (r *RegistrationRepository) CountInFlight(ctx context.Context, courseID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PendingRegistration{}).
		Where("course_id = ? AND status IN ?", courseID, domain.InFlightStatuses).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListPastDeadline returns in-flight registrations whose deadline is at or before now
func (r *RegistrationRepository) ListPastDeadline(ctx context.Context, now time.Time, limit int) ([]*domain.PendingRegistration, error) {
	var regs []*domain.PendingRegistration
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", domain.InFlightStatuses, now).
		Order("expires_at").
		Limit(limit).
		Find(&regs).Error
	if err != nil {
		return nil, err
	}
	return regs, nil
}
