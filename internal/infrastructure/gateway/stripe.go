package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"course-checkout/pkg/logger"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const registrationMetadataKey = "registration_id"

// stripeExpiryMargin is added to the requested deadline so the window still
// clears Stripe's minimum when the session is created after a slow call or a
// few retries.
const stripeExpiryMargin = time.Minute

var _ interfaces.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway opens and inspects Stripe Checkout sessions.
type StripeGateway struct {
	api        *client.API
	successURL string
	cancelURL  string
	timeout    time.Duration
}

func NewStripeGateway(cfg Config) *StripeGateway {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: timeout},
		// Retries happen in RetryingGateway.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.GetLogger(),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(cfg.APIURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeGateway{
		api:        api,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		timeout:    timeout,
	}
}

// idempotencyKey is stable across retries of one attempt so Stripe never
// opens two sessions for the same request.
func idempotencyKey(registrationID uuid.UUID, expiresAt time.Time) string {
	return "checkout:" + registrationID.String() + ":" + strconv.FormatInt(expiresAt.Unix(), 10)
}

func (g *StripeGateway) CreateSession(ctx context.Context, req interfaces.SessionRequest) (*domain.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.RegistrationID.String()),
		ExpiresAt:         stripe.Int64(req.ExpiresAt.Add(stripeExpiryMargin).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(registrationMetadataKey, req.RegistrationID.String())
	params.SetIdempotencyKey(idempotencyKey(req.RegistrationID, req.ExpiresAt))

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify("create_session", err)
	}

	return toPaymentSession(session, req.RegistrationID), nil
}

func (g *StripeGateway) GetSessionStatus(ctx context.Context, sessionID string) (domain.PaymentSessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", classify("get_session", err)
	}

	return mapSessionStatus(session.Status, session.PaymentStatus), nil
}

func (g *StripeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return classify("expire_session", err)
	}
	return nil
}

// mapSessionStatus treats a completed but unpaid session as still open:
// delayed payment methods settle later via async_payment_* events.
func mapSessionStatus(status stripe.CheckoutSessionStatus, payment stripe.CheckoutSessionPaymentStatus) domain.PaymentSessionStatus {
	switch status {
	case stripe.CheckoutSessionStatusComplete:
		if payment == stripe.CheckoutSessionPaymentStatusPaid || payment == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			return domain.SessionComplete
		}
		return domain.SessionOpen
	case stripe.CheckoutSessionStatusExpired:
		return domain.SessionExpired
	default:
		return domain.SessionOpen
	}
}

func toPaymentSession(session *stripe.CheckoutSession, registrationID uuid.UUID) *domain.PaymentSession {
	ps := &domain.PaymentSession{
		SessionID:      session.ID,
		RegistrationID: registrationID,
		Amount:         session.AmountTotal,
		Currency:       string(session.Currency),
		Status:         mapSessionStatus(session.Status, session.PaymentStatus),
		URL:            session.URL,
		ObservedAt:     time.Now().UTC(),
	}
	if session.ExpiresAt > 0 {
		ps.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	if id, ok := session.Metadata[registrationMetadataKey]; ok && registrationID == uuid.Nil {
		if parsed, err := uuid.Parse(id); err == nil {
			ps.RegistrationID = parsed
		}
	}
	return ps
}
