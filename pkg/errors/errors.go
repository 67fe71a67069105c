package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed domain error that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so clones and wraps of a predefined error still satisfy
// errors.Is against it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

var (
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrCapacityExceeded      = New("CAPACITY_EXCEEDED", http.StatusConflict, "course has no remaining seats")
	ErrDuplicateInFlight     = New("DUPLICATE_IN_FLIGHT", http.StatusConflict, "a registration for this course is already in progress")
	ErrAlreadyEnrolled       = New("ALREADY_ENROLLED", http.StatusConflict, "student is already enrolled in this course")
	ErrInvalidState          = New("INVALID_STATE", http.StatusConflict, "registration is not in a state that allows this operation")
	ErrPaymentPending        = New("PAYMENT_PENDING", http.StatusConflict, "payment has not been completed yet")
	ErrConflict              = New("CONFLICT", http.StatusConflict, "conflicting concurrent update")
	ErrGateway               = New("GATEWAY_ERROR", http.StatusBadGateway, "payment gateway request failed")
	ErrReconciliationFailure = New("RECONCILIATION_FAILURE", http.StatusInternalServerError, "confirmed payment could not be committed to an enrollment")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs wraps err with the code and status of a predefined error.
func WrapAs(err error, kind *Error, message string) *Error {
	if message == "" {
		message = kind.Message
	}
	return Wrap(err, kind.Code, kind.Status, message)
}
