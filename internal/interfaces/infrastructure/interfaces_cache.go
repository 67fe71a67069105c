package interfaces

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"time"
)

// SessionCache keeps the last observed copy of each payment session. The
// gateway remains the source of truth.
type SessionCache interface {
	GetSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error)
	SetSession(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error

	// Health and connection management
	Health(ctx context.Context) error
	Close() error
}
