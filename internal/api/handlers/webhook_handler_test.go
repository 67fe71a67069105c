package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/gateway"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	apperrors "course-checkout/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	events []domain.GatewayEvent
	err    error
}

func (q *recordingQueue) EnqueueGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, event)
	return nil
}

func (q *recordingQueue) DequeueGatewayEvent(ctx context.Context) (*domain.GatewayEvent, error) {
	return nil, nil
}
func (q *recordingQueue) SetEventHandler(handler interfaces.GatewayEventHandler) {}
func (q *recordingQueue) StartWorkers()                                          {}
func (q *recordingQueue) StopWorkers()                                           {}

type mapDedup struct {
	seen      map[string]bool
	forgotten []string
}

func (d *mapDedup) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *mapDedup) Forget(ctx context.Context, eventID string) error {
	delete(d.seen, eventID)
	d.forgotten = append(d.forgotten, eventID)
	return nil
}

func postWebhook(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/payments", h.HandlePaymentEvent)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body)))
	return w
}

func TestWebhookHandler_EnqueuesOnce(t *testing.T) {
	queue := &recordingQueue{}
	dedup := &mapDedup{seen: map[string]bool{}}
	h := NewWebhookHandler(gateway.JSONEventParser{}, dedup, queue, nil)
	body := `{"event_id":"evt_1","session_id":"cs_fake_1","status":"complete"}`

	require.Equal(t, http.StatusOK, postWebhook(h, body).Code)
	require.Equal(t, http.StatusOK, postWebhook(h, body).Code)

	require.Len(t, queue.events, 1)
	assert.Equal(t, "cs_fake_1", queue.events[0].SessionID)
	assert.Equal(t, domain.SessionComplete, queue.events[0].Status)
	assert.False(t, queue.events[0].ReceivedAt.IsZero())
}

func TestWebhookHandler_ForgetsEventWhenQueueIsFull(t *testing.T) {
	queue := &recordingQueue{err: errors.New("queue is full")}
	dedup := &mapDedup{seen: map[string]bool{}}
	h := NewWebhookHandler(gateway.JSONEventParser{}, dedup, queue, nil)

	w := postWebhook(h, `{"event_id":"evt_2","session_id":"cs_fake_1","status":"expired"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, []string{"evt_2"}, dedup.forgotten)
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	h := NewWebhookHandler(gateway.NewStripeEventParser("whsec_test"), &mapDedup{seen: map[string]bool{}}, &recordingQueue{}, nil)

	w := postWebhook(h, `{"id":"evt_1","type":"checkout.session.completed"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid signature")
}

func TestRespondErrorUsesTypedStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.Clone(apperrors.ErrNotFound, "registration missing"), http.StatusNotFound},
		{apperrors.Clone(apperrors.ErrCapacityExceeded, ""), http.StatusConflict},
		{apperrors.WrapAs(errors.New("timeout"), apperrors.ErrGateway, ""), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}
