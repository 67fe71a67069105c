package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "course-checkout/internal/domain/registration"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// ErrInvalidSignature is returned when a notification fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// EventParser turns a raw notification body into a GatewayEvent. It returns
// (nil, nil) for event types that do not affect a session status.
type EventParser interface {
	Parse(payload []byte, signature string) (*domain.GatewayEvent, error)
	SignatureHeader() string
}

// NewEventParser picks the parser for the configured provider.
func NewEventParser(cfg Config) EventParser {
	if cfg.Provider == ProviderStripe {
		return NewStripeEventParser(cfg.WebhookSecret)
	}
	return JSONEventParser{}
}

type StripeEventParser struct {
	secret string
}

func NewStripeEventParser(secret string) *StripeEventParser {
	return &StripeEventParser{secret: secret}
}

func (p *StripeEventParser) SignatureHeader() string {
	return "Stripe-Signature"
}

func (p *StripeEventParser) Parse(payload []byte, signature string) (*domain.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status domain.PaymentSessionStatus
	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = domain.SessionComplete
	case "checkout.session.async_payment_failed":
		status = domain.SessionCanceled
	case "checkout.session.expired":
		status = domain.SessionExpired
	default:
		return nil, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	// completed without payment means a delayed method; the async events follow.
	if status == domain.SessionComplete && string(event.Type) == "checkout.session.completed" &&
		mapSessionStatus(session.Status, session.PaymentStatus) != domain.SessionComplete {
		return nil, nil
	}

	return &domain.GatewayEvent{
		EventID:    event.ID,
		SessionID:  session.ID,
		Status:     status,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// JSONEventParser accepts unsigned {event_id, session_id, status} bodies. It
// is only wired for the fake provider.
type JSONEventParser struct{}

func (JSONEventParser) SignatureHeader() string {
	return ""
}

func (JSONEventParser) Parse(payload []byte, _ string) (*domain.GatewayEvent, error) {
	var event domain.GatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.SessionID == "" || !event.Status.Valid() {
		return nil, fmt.Errorf("event needs a session_id and a valid status")
	}
	if event.EventID == "" {
		event.EventID = fmt.Sprintf("%s:%s", event.SessionID, event.Status)
	}
	event.ReceivedAt = time.Now().UTC()
	event.Attempts = 0
	return &event, nil
}
