package interfaces

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"time"

	"github.com/google/uuid"
)

// SessionRequest describes a checkout session to open for a registration.
type SessionRequest struct {
	RegistrationID uuid.UUID
	Amount         int64
	Currency       string
	Description    string
	ExpiresAt      time.Time
}

// PaymentGateway is the hosted checkout adapter. Implementations carry their
// own request timeouts.
type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*domain.PaymentSession, error)
	GetSessionStatus(ctx context.Context, sessionID string) (domain.PaymentSessionStatus, error)
	ExpireSession(ctx context.Context, sessionID string) error
}
