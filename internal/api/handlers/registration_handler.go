package handlers

import (
	"net/http"
	"strconv"

	"course-checkout/internal/api/middleware"
	domain "course-checkout/internal/domain/registration"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	"course-checkout/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RegistrationHandler is the payment page boundary: it maps HTTP requests
// onto registration and coordinator operations.
type RegistrationHandler struct {
	registrationService   serviceInterfaces.RegistrationService
	coordinator           serviceInterfaces.PaymentCoordinator
	reconciliationService serviceInterfaces.ReconciliationService
	publishableKey        string
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(
	registrationService serviceInterfaces.RegistrationService,
	coordinator serviceInterfaces.PaymentCoordinator,
	reconciliationService serviceInterfaces.ReconciliationService,
	publishableKey string,
) *RegistrationHandler {
	return &RegistrationHandler{
		registrationService:   registrationService,
		coordinator:           coordinator,
		reconciliationService: reconciliationService,
		publishableKey:        publishableKey,
	}
}

// CreateRegistration handles POST /api/v1/registrations
func (h *RegistrationHandler) CreateRegistration(c *gin.Context) {
	var req domain.CreateRegistrationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	reg, err := h.registrationService.CreatePendingRegistration(c.Request.Context(), req.StudentID, req.CourseID)
	if err != nil {
		respondError(c, err)
		return
	}
	logRegistration(c, reg)

	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Message: "Seat reserved, payment required",
		Data:    reg,
	})
}

// GetRegistration handles GET /api/v1/registrations/:id
func (h *RegistrationHandler) GetRegistration(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.coordinator.GetRegistrationStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	logRegistration(c, status.Registration)

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Registration retrieved successfully",
		Data:    status,
	})
}

// StartCheckout handles POST /api/v1/registrations/:id/checkout
func (h *RegistrationHandler) StartCheckout(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	reg, session, err := h.coordinator.StartPaymentSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	logRegistration(c, reg)

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Payment session started",
		Data: domain.CheckoutResponse{
			Registration:   reg,
			SessionID:      session.SessionID,
			CheckoutURL:    session.URL,
			PublishableKey: h.publishableKey,
		},
	})
}

// Confirm handles POST /api/v1/registrations/:id/confirm
func (h *RegistrationHandler) Confirm(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	enrollment, err := h.coordinator.Confirm(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.AddLogFields(c, logrus.Fields{
		"registration_id": enrollment.RegistrationID,
		"enrollment_id":   enrollment.EnrollmentID,
	})

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Enrollment confirmed",
		Data:    enrollment,
	})
}

// Cancel handles POST /api/v1/registrations/:id/cancel. The body is optional.
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req domain.CancelRegistrationRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}

	reg, err := h.coordinator.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	logRegistration(c, reg)

	if req.Reason != "" {
		logger.WithFields(logrus.Fields{
			"registration_id": id,
			"note":            req.Reason,
		}).Info("Registration canceled by caller")
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Registration canceled",
		Data:    reg,
	})
}

// Poll handles POST /api/v1/registrations/:id/poll
func (h *RegistrationHandler) Poll(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	reg, err := h.coordinator.Poll(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	logRegistration(c, reg)

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Registration status refreshed",
		Data:    reg,
	})
}

// GetAvailability handles GET /api/v1/courses/:id/availability
func (h *RegistrationHandler) GetAvailability(c *gin.Context) {
	courseID, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	availability, err := h.registrationService.GetSeatAvailability(c.Request.Context(), courseID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Seat availability retrieved successfully",
		Data:    availability,
	})
}

// ListReconciliationFailures handles GET /api/v1/reconciliation/failures
func (h *RegistrationHandler) ListReconciliationFailures(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	failures, err := h.reconciliationService.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Reconciliation failures retrieved successfully",
		Data: map[string]interface{}{
			"failures": failures,
			"count":    len(failures),
		},
	})
}
