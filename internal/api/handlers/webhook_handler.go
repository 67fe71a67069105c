package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"course-checkout/internal/api/middleware"
	"course-checkout/internal/infrastructure/gateway"
	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"course-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

// WebhookHandler accepts gateway notifications. It verifies and deduplicates
// them and hands them to the queue; workers apply them asynchronously.
type WebhookHandler struct {
	parser  gateway.EventParser
	dedup   interfaces.EventDeduplicator
	queue   interfaces.QueueService
	metrics *metrics.Metrics
}

func NewWebhookHandler(parser gateway.EventParser, dedup interfaces.EventDeduplicator, queue interfaces.QueueService, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		parser:  parser,
		dedup:   dedup,
		queue:   queue,
		metrics: m,
	}
}

// HandlePaymentEvent handles POST /webhooks/payments
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Unable to read notification body",
		})
		return
	}

	event, err := h.parser.Parse(payload, c.GetHeader(h.parser.SignatureHeader()))
	if err != nil {
		h.metrics.RecordGatewayEvent("unknown", "rejected")
		message := "Invalid notification"
		if errors.Is(err, gateway.ErrInvalidSignature) {
			message = "Invalid signature"
		}
		logger.WithField("error", err.Error()).Warn("Gateway notification rejected")
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: message,
		})
		return
	}
	if event == nil {
		c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Event ignored"})
		return
	}

	ctx := c.Request.Context()
	event.ReceivedAt = time.Now().UTC()
	fields := logrus.Fields{
		"event_id":   event.EventID,
		"session_id": event.SessionID,
		"event":      event.Status,
	}
	middleware.AddLogFields(c, fields)
	log := logger.WithFields(fields)

	first, err := h.dedup.MarkProcessed(ctx, event.EventID)
	if err != nil {
		// OnGatewayEvent is idempotent; proceed without dedup.
		log.WithError(err).Warn("Event dedup unavailable")
		first = true
	}
	if !first {
		h.metrics.RecordGatewayEvent(string(event.Status), "duplicate")
		c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Event already received"})
		return
	}

	if err := h.queue.EnqueueGatewayEvent(ctx, *event); err != nil {
		log.WithError(err).Error("Failed to enqueue gateway event")
		if forgetErr := h.dedup.Forget(ctx, event.EventID); forgetErr != nil {
			log.WithError(forgetErr).Warn("Failed to forget event id")
		}
		c.JSON(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Message: "Event could not be queued, retry later",
		})
		return
	}

	log.Info("Gateway event accepted")
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Event accepted"})
}
