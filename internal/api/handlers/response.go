package handlers

import (
	"net/http"
	"strconv"

	"course-checkout/internal/api/middleware"
	domain "course-checkout/internal/domain/registration"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// ErrorDetail is the machine readable part of a failed response
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError writes err using the status carried by its typed error.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	middleware.AddLogFields(c, logrus.Fields{"error_code": appErr.Code})
	if appErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(appErr.Status, APIResponse{
		Success: false,
		Message: appErr.Message,
		Errors:  ErrorDetail{Code: appErr.Code, Message: appErr.Error()},
	})
}

// logRegistration tags the request log line with the registration it touched.
func logRegistration(c *gin.Context, reg *domain.PendingRegistration) {
	if reg == nil {
		return
	}
	fields := logrus.Fields{
		"registration_id":     reg.RegistrationID,
		"registration_status": reg.Status,
	}
	if sessionID := reg.SessionID(); sessionID != "" {
		fields["session_id"] = sessionID
	}
	middleware.AddLogFields(c, fields)
}

// bindAndValidate decodes the JSON body into req and validates it. It writes
// the 400 response itself and reports false on failure.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid request format",
			Errors:  err.Error(),
		})
		return false
	}

	if err := validator.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Validation failed",
			Errors:  validator.FormatValidationError(err),
		})
		return false
	}
	return true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid " + name + " format",
		})
		return uuid.Nil, false
	}
	return id, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "Invalid " + name + " format",
		})
		return 0, false
	}
	return id, true
}
