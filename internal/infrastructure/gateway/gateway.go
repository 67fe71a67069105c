package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/stripe/stripe-go/v76"
)

const (
	ProviderStripe = "stripe"
	ProviderFake   = "fake"
)

// Stripe accepts a Checkout expires_at between 30 minutes and 24 hours after
// the session is created.
const (
	MinStripeSessionTTL = 30 * time.Minute
	MaxStripeSessionTTL = 24 * time.Hour
)

// Config is passed in at construction; the gateway never reads global config.
type Config struct {
	Provider       string
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	APIURL         string
	SuccessURL     string
	CancelURL      string
	RequestTimeout time.Duration
	// SessionTTL is the checkout window the coordinator asks for; zero means
	// the coordinator default.
	SessionTTL time.Duration
	Retry      RetryPolicy
}

// GatewayError wraps a failed gateway call. Temporary failures are worth
// retrying; everything else is returned to the caller as is.
type GatewayError struct {
	Op        string
	Temporary bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is a retryable gateway failure.
func IsTemporary(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Temporary
	}
	return false
}

// classify decides whether a raw adapter error is transient: network errors,
// timeouts, 429 and 5xx responses are.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	temporary := false
	var stripeErr *stripe.Error
	var netErr net.Error
	switch {
	case errors.As(err, &stripeErr):
		temporary = stripeErr.HTTPStatusCode == 429 || stripeErr.HTTPStatusCode >= 500
	case errors.Is(err, context.DeadlineExceeded):
		temporary = true
	case errors.As(err, &netErr):
		temporary = true
	}

	return &GatewayError{Op: op, Temporary: temporary, Err: err}
}

// New builds the configured gateway wrapped in the retry decorator.
func New(cfg Config, m *metrics.Metrics) (interfaces.PaymentGateway, error) {
	var inner interfaces.PaymentGateway
	switch cfg.Provider {
	case ProviderStripe:
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("payment.secret_key is required for the stripe provider")
		}
		if err := validateStripeSessionTTL(cfg.SessionTTL); err != nil {
			return nil, err
		}
		inner = NewStripeGateway(cfg)
	case ProviderFake, "":
		inner = NewFakeGateway()
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}

	return NewRetryingGateway(inner, cfg.Retry, m), nil
}

func validateStripeSessionTTL(ttl time.Duration) error {
	if ttl == 0 {
		ttl = MinStripeSessionTTL
	}
	if ttl < MinStripeSessionTTL || ttl+stripeExpiryMargin >= MaxStripeSessionTTL {
		return fmt.Errorf("payment.session_ttl %s must be at least %s and below %s for the stripe provider",
			ttl, MinStripeSessionTTL, MaxStripeSessionTTL-stripeExpiryMargin)
	}
	return nil
}
