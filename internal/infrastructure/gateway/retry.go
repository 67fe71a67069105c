package gateway

import (
	"context"
	"time"

	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"course-checkout/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries applied to transient gateway failures.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var _ interfaces.PaymentGateway = (*RetryingGateway)(nil)

// RetryingGateway retries temporary failures of the wrapped gateway with
// exponential backoff. Permanent failures return on the first attempt.
type RetryingGateway struct {
	inner   interfaces.PaymentGateway
	policy  RetryPolicy
	metrics *metrics.Metrics
}

func NewRetryingGateway(inner interfaces.PaymentGateway, policy RetryPolicy, m *metrics.Metrics) *RetryingGateway {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 200 * time.Millisecond
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = 2 * time.Second
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &RetryingGateway{inner: inner, policy: policy, metrics: m}
}

func (g *RetryingGateway) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.policy.InitialInterval
	exp.MaxInterval = g.policy.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.policy.MaxRetries)), ctx)
}

func (g *RetryingGateway) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !IsTemporary(err) {
			return backoff.Permanent(err)
		}
		return err
	}, g.newBackOff(ctx), func(err error, wait time.Duration) {
		logger.WithFields(map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"wait":      wait.String(),
		}).WithError(err).Warn("Payment gateway call failed, retrying")
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.ObserveGatewayRequest(op, outcome, time.Since(start))
	return err
}

func (g *RetryingGateway) CreateSession(ctx context.Context, req interfaces.SessionRequest) (*domain.PaymentSession, error) {
	var session *domain.PaymentSession
	err := g.do(ctx, "create_session", func() error {
		var err error
		session, err = g.inner.CreateSession(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (g *RetryingGateway) GetSessionStatus(ctx context.Context, sessionID string) (domain.PaymentSessionStatus, error) {
	var status domain.PaymentSessionStatus
	err := g.do(ctx, "get_session", func() error {
		var err error
		status, err = g.inner.GetSessionStatus(ctx, sessionID)
		return err
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (g *RetryingGateway) ExpireSession(ctx context.Context, sessionID string) error {
	return g.do(ctx, "expire_session", func() error {
		return g.inner.ExpireSession(ctx, sessionID)
	})
}

// Unwrap returns the decorated gateway.
func (g *RetryingGateway) Unwrap() interfaces.PaymentGateway {
	return g.inner
}
