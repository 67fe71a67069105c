package service

import (
	"context"
	"errors"
	"time"

	interfaces "course-checkout/internal/interfaces/infrastructure"
	apperrors "course-checkout/pkg/errors"

	"github.com/cenkalti/backoff/v4"
)

const defaultConflictRetries = 5

// retryOnConflict reruns fn while the store reports an optimistic version
// conflict. Any other error stops the loop and is returned unchanged.
func retryOnConflict(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = defaultConflictRetries
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 5 * time.Millisecond
	exp.MaxInterval = 100 * time.Millisecond
	exp.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := fn()
		if err == nil || errors.Is(err, interfaces.ErrVersionConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx))
}

// translateStoreError maps repository sentinels onto the typed taxonomy.
func translateStoreError(err error, message string) error {
	if err == nil {
		return nil
	}
	var typed *apperrors.Error
	if errors.As(err, &typed) {
		return err
	}

	switch {
	case errors.Is(err, interfaces.ErrCapacityExceeded):
		return apperrors.Clone(apperrors.ErrCapacityExceeded, "")
	case errors.Is(err, interfaces.ErrDuplicateInFlight):
		return apperrors.Clone(apperrors.ErrDuplicateInFlight, "")
	case errors.Is(err, interfaces.ErrAlreadyEnrolled):
		return apperrors.Clone(apperrors.ErrAlreadyEnrolled, "")
	case errors.Is(err, interfaces.ErrVersionConflict):
		return apperrors.WrapAs(err, apperrors.ErrConflict, "")
	default:
		return apperrors.WrapAs(err, apperrors.ErrInternal, message)
	}
}
