package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func temporary(msg string) error {
	return &GatewayError{Op: "test", Temporary: true, Err: errors.New(msg)}
}

func sessionRequest() interfaces.SessionRequest {
	return interfaces.SessionRequest{
		RegistrationID: uuid.New(),
		Amount:         5000,
		Currency:       "usd",
		Description:    "Math 101",
		ExpiresAt:      time.Now().Add(30 * time.Minute),
	}
}

func TestRetryingGatewayRetriesTemporaryFailures(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailNext(temporary("reset"), temporary("timeout"))
	gw := NewRetryingGateway(fake, fastRetry, nil)

	session, err := gw.CreateSession(context.Background(), sessionRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionOpen, session.Status)
	assert.Equal(t, 3, fake.Calls("create_session"))
}

func TestRetryingGatewayStopsOnPermanentFailure(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailNext(&GatewayError{Op: "test", Err: errors.New("card declined")})
	gw := NewRetryingGateway(fake, fastRetry, nil)

	_, err := gw.CreateSession(context.Background(), sessionRequest())
	require.Error(t, err)
	assert.Equal(t, 1, fake.Calls("create_session"))
}

func TestRetryingGatewaySurfacesExhaustedRetries(t *testing.T) {
	fake := NewFakeGateway()
	fake.FailNext(temporary("a"), temporary("b"), temporary("c"), temporary("d"))
	gw := NewRetryingGateway(fake, fastRetry, nil)

	_, err := gw.GetSessionStatus(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
	assert.Equal(t, 3, fake.Calls("get_session"))
}

func TestFakeGatewayExpiresAtDeadline(t *testing.T) {
	fake := NewFakeGateway()
	now := time.Now()
	fake.SetClock(func() time.Time { return now })
	req := sessionRequest()
	req.ExpiresAt = now.Add(time.Minute)

	session, err := fake.CreateSession(context.Background(), req)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	status, err := fake.GetSessionStatus(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionExpired, status)
}

func TestMapSessionStatus(t *testing.T) {
	cases := []struct {
		status  stripe.CheckoutSessionStatus
		payment stripe.CheckoutSessionPaymentStatus
		want    domain.PaymentSessionStatus
	}{
		{stripe.CheckoutSessionStatusOpen, stripe.CheckoutSessionPaymentStatusUnpaid, domain.SessionOpen},
		{stripe.CheckoutSessionStatusComplete, stripe.CheckoutSessionPaymentStatusPaid, domain.SessionComplete},
		{stripe.CheckoutSessionStatusComplete, stripe.CheckoutSessionPaymentStatusUnpaid, domain.SessionOpen},
		{stripe.CheckoutSessionStatusExpired, stripe.CheckoutSessionPaymentStatusUnpaid, domain.SessionExpired},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapSessionStatus(tc.status, tc.payment), "%s/%s", tc.status, tc.payment)
	}
}

func newStripeAgainst(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewStripeGateway(Config{
		Provider:       ProviderStripe,
		SecretKey:      "sk_test_123",
		APIURL:         server.URL,
		SuccessURL:     "https://example.test/success",
		CancelURL:      "https://example.test/cancel",
		RequestTimeout: 2 * time.Second,
	})
}

func TestStripeGatewayCreateSession(t *testing.T) {
	req := sessionRequest()
	var gotMetadata, gotIdempotency, gotAmount string

	gw := newStripeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotMetadata = r.PostForm.Get("metadata[registration_id]")
		gotAmount = r.PostForm.Get("line_items[0][price_data][unit_amount]")
		gotIdempotency = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cs_test_1","object":"checkout.session","status":"open","payment_status":"unpaid",
			"url":"https://checkout.stripe.com/c/pay/cs_test_1","amount_total":5000,"currency":"usd","expires_at":%d}`,
			req.ExpiresAt.Unix())
	})

	session, err := gw.CreateSession(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.SessionID)
	assert.Equal(t, domain.SessionOpen, session.Status)
	assert.Equal(t, int64(5000), session.Amount)
	assert.Equal(t, req.RegistrationID, session.RegistrationID)
	assert.Equal(t, req.RegistrationID.String(), gotMetadata)
	assert.Equal(t, "5000", gotAmount)
	assert.Equal(t, idempotencyKey(req.RegistrationID, req.ExpiresAt), gotIdempotency)
}

func TestStripeGatewayExpiresAtClearsStripeMinimum(t *testing.T) {
	req := sessionRequest()
	req.ExpiresAt = time.Now().Add(MinStripeSessionTTL)
	var gotExpiresAt int64
	var receivedAt time.Time

	gw := newStripeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		receivedAt = time.Now()
		require.NoError(t, r.ParseForm())
		var err error
		gotExpiresAt, err = strconv.ParseInt(r.PostForm.Get("expires_at"), 10, 64)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cs_test_2","object":"checkout.session","status":"open","payment_status":"unpaid","expires_at":%d}`, gotExpiresAt)
	})

	session, err := gw.CreateSession(context.Background(), req)
	require.NoError(t, err)

	minimum := receivedAt.Add(MinStripeSessionTTL).Unix()
	assert.GreaterOrEqual(t, gotExpiresAt, minimum)
	assert.Equal(t, time.Unix(gotExpiresAt, 0).UTC(), session.ExpiresAt)
}

func TestNewRejectsSessionTTLOutsideStripeWindow(t *testing.T) {
	base := Config{Provider: ProviderStripe, SecretKey: "sk_test_123"}

	for _, ttl := range []time.Duration{0, 30 * time.Minute, 2 * time.Hour, 23 * time.Hour} {
		cfg := base
		cfg.SessionTTL = ttl
		_, err := New(cfg, nil)
		assert.NoError(t, err, "ttl %s", ttl)
	}

	for _, ttl := range []time.Duration{29 * time.Minute, 24 * time.Hour, 48 * time.Hour} {
		cfg := base
		cfg.SessionTTL = ttl
		_, err := New(cfg, nil)
		assert.Error(t, err, "ttl %s", ttl)
	}

	fake := Config{Provider: ProviderFake, SessionTTL: time.Minute}
	_, err := New(fake, nil)
	assert.NoError(t, err)
}

func TestStripeGatewayClassifiesServerErrorsAsTemporary(t *testing.T) {
	gw := newStripeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"try again"}}`)
	})

	_, err := gw.GetSessionStatus(context.Background(), "cs_test_1")
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
}

func TestStripeGatewayClassifiesClientErrorsAsPermanent(t *testing.T) {
	gw := newStripeAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
	})

	_, err := gw.GetSessionStatus(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.False(t, IsTemporary(err))
}

func signedStripePayload(t *testing.T, secret, payload string) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestStripeEventParser(t *testing.T) {
	const secret = "whsec_test"
	parser := NewStripeEventParser(secret)

	payload := `{"id":"evt_1","object":"event","api_version":"2023-10-16","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_1","object":"checkout.session","status":"complete","payment_status":"paid"}}}`

	event, err := parser.Parse([]byte(payload), signedStripePayload(t, secret, payload))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "evt_1", event.EventID)
	assert.Equal(t, "cs_test_1", event.SessionID)
	assert.Equal(t, domain.SessionComplete, event.Status)

	_, err = parser.Parse([]byte(payload), "t=1,v1=deadbeef")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeEventParserIgnoresUnpaidCompletion(t *testing.T) {
	const secret = "whsec_test"
	parser := NewStripeEventParser(secret)

	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_test_2","object":"checkout.session","status":"complete","payment_status":"unpaid"}}}`

	event, err := parser.Parse([]byte(payload), signedStripePayload(t, secret, payload))
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestJSONEventParser(t *testing.T) {
	event, err := JSONEventParser{}.Parse([]byte(`{"session_id":"cs_fake_1","status":"canceled"}`), "")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCanceled, event.Status)
	assert.Equal(t, "cs_fake_1:canceled", event.EventID)

	_, err = JSONEventParser{}.Parse([]byte(`{"session_id":"cs_fake_1","status":"paid"}`), "")
	assert.Error(t, err)
}
