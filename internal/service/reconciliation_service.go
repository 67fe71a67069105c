package service

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/logger"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ReasonCommitRejected = "payment confirmed but enrollment could not be committed"
	ReasonLatePayment    = "payment completed after the registration reached a terminal state"
)

var _ serviceInterfaces.ReconciliationService = (*ReconciliationService)(nil)

// ReconciliationService records confirmed payments that have no seat. Refunds
// are handled by whoever consumes these records.
type ReconciliationService struct {
	repo    interfaces.ReconciliationRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReconciliationService(repo interfaces.ReconciliationRepository, m *metrics.Metrics, now func() time.Time) *ReconciliationService {
	if now == nil {
		now = time.Now
	}
	return &ReconciliationService{repo: repo, metrics: m, now: now}
}

// Report logs, counts and persists a failure. The log line and metric are
// emitted even when persisting fails.
func (s *ReconciliationService) Report(ctx context.Context, reg *domain.PendingRegistration, sessionID, reason string) error {
	failure := &domain.ReconciliationFailure{
		ID:             uuid.New(),
		RegistrationID: reg.RegistrationID,
		SessionID:      sessionID,
		Reason:         reason,
		CreatedAt:      s.now().UTC(),
	}

	entry := logger.WithFields(logrus.Fields{
		"registration_id": reg.RegistrationID,
		"session_id":      sessionID,
		"student_id":      reg.StudentID,
		"course_id":       reg.CourseID,
		"status":          reg.Status,
		"failure_id":      failure.ID,
	})
	entry.Errorf("Reconciliation failure: %s", reason)
	s.metrics.RecordReconciliationFailure()

	if err := s.repo.Create(ctx, failure); err != nil {
		entry.WithError(err).Error("Failed to persist reconciliation failure")
		return apperrors.WrapAs(err, apperrors.ErrInternal, "failed to persist reconciliation failure")
	}
	return nil
}

func (s *ReconciliationService) List(ctx context.Context, limit, offset int) ([]*domain.ReconciliationFailure, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	failures, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to list reconciliation failures")
	}
	return failures, nil
}
