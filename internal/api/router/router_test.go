package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-checkout/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

func memoryConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "course-checkout", Version: "test"},
		Database: config.DatabaseConfig{Driver: "memory"},
		Cache:    config.CacheConfig{Type: "memory"},
		Queue:    config.QueueConfig{Type: "memory", BufferSize: 16, Workers: 2, MaxAttempts: 3},
		Payment: config.PaymentConfig{
			Provider:       "fake",
			PublishableKey: "pk_test_demo",
			SessionTTL:     30 * time.Minute,
		},
	}
}

func newTestComponents(t *testing.T) *Components {
	t.Helper()
	gin.SetMode(gin.TestMode)

	components, err := NewCheckoutComponents(memoryConfig(), nil)
	require.NoError(t, err)
	components.QueueService.StartWorkers()
	t.Cleanup(func() {
		components.QueueService.StopWorkers()
		_ = components.Close()
	})
	return components
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	c := newTestComponents(t)
	r := c.Router

	code, env := do(t, r, http.MethodPost, "/api/v1/registrations", map[string]int64{"student_id": 1, "course_id": 101})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var reg struct {
		RegistrationID string `json:"registration_id"`
		Status         string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.Equal(t, "created", reg.Status)

	code, env = do(t, r, http.MethodPost, "/api/v1/registrations/"+reg.RegistrationID+"/checkout", nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	var checkout struct {
		SessionID      string `json:"session_id"`
		CheckoutURL    string `json:"checkout_url"`
		PublishableKey string `json:"publishable_key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &checkout))
	assert.NotEmpty(t, checkout.SessionID)
	assert.NotEmpty(t, checkout.CheckoutURL)
	assert.Equal(t, "pk_test_demo", checkout.PublishableKey)

	code, env = do(t, r, http.MethodPost, "/api/v1/registrations/"+reg.RegistrationID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(env.Errors), "PAYMENT_PENDING")

	// The only seat is held, so a second student is turned away.
	code, _ = do(t, r, http.MethodPost, "/api/v1/students", map[string]string{"first_name": "Jane", "last_name": "Roe"})
	require.Equal(t, http.StatusCreated, code)
	code, env = do(t, r, http.MethodPost, "/api/v1/registrations", map[string]int64{"student_id": 2, "course_id": 101})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(env.Errors), "CAPACITY_EXCEEDED")

	code, _ = do(t, r, http.MethodPost, "/webhooks/payments", map[string]string{
		"event_id":   "evt_1",
		"session_id": checkout.SessionID,
		"status":     "complete",
	})
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		_, env := do(t, r, http.MethodGet, "/api/v1/registrations/"+reg.RegistrationID, nil)
		var status struct {
			Registration struct {
				Status string `json:"status"`
			} `json:"registration"`
			Enrollment *struct{} `json:"enrollment"`
		}
		_ = json.Unmarshal(env.Data, &status)
		return status.Registration.Status == "confirmed" && status.Enrollment != nil
	}, 2*time.Second, 10*time.Millisecond)

	code, env = do(t, r, http.MethodGet, "/api/v1/courses/101/availability", nil)
	require.Equal(t, http.StatusOK, code)
	var availability struct {
		Confirmed int `json:"confirmed"`
		Available int `json:"available"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &availability))
	assert.Equal(t, 1, availability.Confirmed)
	assert.Equal(t, 0, availability.Available)
}

func TestWebhookDeduplicatesEvents(t *testing.T) {
	c := newTestComponents(t)
	body := map[string]string{"event_id": "evt_dup", "session_id": "cs_unknown", "status": "expired"}

	code, env := do(t, c.Router, http.MethodPost, "/webhooks/payments", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Event accepted", env.Message)

	code, env = do(t, c.Router, http.MethodPost, "/webhooks/payments", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Event already received", env.Message)
}

func TestRouterRejectsMalformedInput(t *testing.T) {
	c := newTestComponents(t)

	cases := []struct {
		method, path string
		body         interface{}
		want         int
	}{
		{http.MethodPost, "/api/v1/registrations", map[string]int64{"student_id": 0, "course_id": 101}, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/registrations/not-a-uuid", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/registrations/00000000-0000-0000-0000-000000000001", nil, http.StatusNotFound},
		{http.MethodGet, "/api/v1/courses/abc/availability", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/students/99", nil, http.StatusNotFound},
		{http.MethodPost, "/webhooks/payments", map[string]string{"session_id": "cs_1", "status": "paid"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s %s", tc.method, tc.path), func(t *testing.T) {
			code, _ := do(t, c.Router, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	c := newTestComponents(t)

	for _, path := range []string{"/health", "/ready", "/live"} {
		w := httptest.NewRecorder()
		c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
