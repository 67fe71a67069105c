package domain

import (
	"time"

	"github.com/google/uuid"
)

// Student represents a student in the system
type Student struct {
	StudentID      int64     `json:"student_id" db:"student_id" gorm:"primaryKey;autoIncrement"`
	FirstName      string    `json:"first_name" db:"first_name" gorm:"not null"`
	LastName       string    `json:"last_name" db:"last_name" gorm:"not null"`
	EnrollmentDate time.Time `json:"enrollment_date" db:"enrollment_date" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Course represents a course offered for checkout. Price is in minor units
// of Currency.
type Course struct {
	CourseID  int64     `json:"course_id" db:"course_id" gorm:"primaryKey"`
	Name      string    `json:"name" db:"name" gorm:"not null"`
	Capacity  int       `json:"capacity" db:"capacity" gorm:"not null;check:capacity >= 0"`
	Price     int64     `json:"price" db:"price" gorm:"not null;check:price >= 0"`
	Currency  string    `json:"currency" db:"currency" gorm:"not null;default:usd"`
	Version   int       `json:"version" db:"version" gorm:"default:1"`
	CreatedAt time.Time `json:"created_at" db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" gorm:"autoUpdateTime"`
}

// PendingRegistration is one enrollment attempt. It holds a seat while it is
// Created or AwaitingPayment and is retired once it reaches a terminal status.
type PendingRegistration struct {
	RegistrationID   uuid.UUID          `json:"registration_id" gorm:"type:uuid;primaryKey"`
	StudentID        int64              `json:"student_id" gorm:"not null"`
	CourseID         int64              `json:"course_id" gorm:"not null"`
	Status           RegistrationStatus `json:"status" gorm:"type:text;not null;default:created"`
	PaymentSessionID *string            `json:"payment_session_id,omitempty"`
	FailureReason    string             `json:"failure_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at" gorm:"not null"`
	ExpiresAt        time.Time          `json:"expires_at" gorm:"not null"`
	UpdatedAt        time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
	Version          int                `json:"version" gorm:"default:1"`
}

func (PendingRegistration) TableName() string {
	return "pending_registrations"
}

// SessionID returns the bound payment session id or "".
func (r *PendingRegistration) SessionID() string {
	if r.PaymentSessionID == nil {
		return ""
	}
	return *r.PaymentSessionID
}

// Expired reports whether the deadline has passed at now.
func (r *PendingRegistration) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Enrollment is the durable seat grant materialized by a confirmed registration.
type Enrollment struct {
	EnrollmentID   uuid.UUID `json:"enrollment_id" gorm:"type:uuid;primaryKey"`
	RegistrationID uuid.UUID `json:"registration_id" gorm:"type:uuid;uniqueIndex;not null"`
	StudentID      int64     `json:"student_id" gorm:"not null"`
	CourseID       int64     `json:"course_id" gorm:"not null"`
	ConfirmedAt    time.Time `json:"confirmed_at" gorm:"not null"`
}

// PaymentSession is the last observed copy of a gateway checkout session.
type PaymentSession struct {
	SessionID      string               `json:"session_id"`
	RegistrationID uuid.UUID            `json:"registration_id"`
	Amount         int64                `json:"amount"`
	Currency       string               `json:"currency"`
	Status         PaymentSessionStatus `json:"status"`
	URL            string               `json:"url,omitempty"`
	ExpiresAt      time.Time            `json:"expires_at"`
	ObservedAt     time.Time            `json:"observed_at"`
}

// ReconciliationFailure records a confirmed payment that could not be turned
// into an enrollment. Remediation happens outside this service.
type ReconciliationFailure struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RegistrationID uuid.UUID `json:"registration_id" gorm:"type:uuid;not null;index"`
	SessionID      string    `json:"session_id"`
	Reason         string    `json:"reason" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
}

// GatewayEvent is a session status change delivered by the gateway.
type GatewayEvent struct {
	EventID    string               `json:"event_id"`
	SessionID  string               `json:"session_id"`
	Status     PaymentSessionStatus `json:"status"`
	ReceivedAt time.Time            `json:"received_at"`
	Attempts   int                  `json:"attempts"`
}

// Request DTOs

// CreateRegistrationRequest asks for a seat hold on a course.
type CreateRegistrationRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	CourseID  int64 `json:"course_id" validate:"required,gt=0"`
}

// CancelRegistrationRequest carries an optional caller supplied note.
type CancelRegistrationRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// CheckoutResponse is returned when a payment session is started.
type CheckoutResponse struct {
	Registration   *PendingRegistration `json:"registration"`
	SessionID      string               `json:"session_id"`
	CheckoutURL    string               `json:"checkout_url,omitempty"`
	PublishableKey string               `json:"publishable_key,omitempty"`
}

// RegistrationStatusResponse reports a registration with its enrollment and
// the cached session copy when present.
type RegistrationStatusResponse struct {
	Registration *PendingRegistration `json:"registration"`
	Enrollment   *Enrollment          `json:"enrollment,omitempty"`
	Session      *PaymentSession      `json:"session,omitempty"`
}

// SeatAvailability summarises seat usage for a course.
type SeatAvailability struct {
	CourseID  int64 `json:"course_id"`
	Capacity  int   `json:"capacity"`
	Confirmed int   `json:"confirmed"`
	InFlight  int   `json:"in_flight"`
	Available int   `json:"available"`
}
