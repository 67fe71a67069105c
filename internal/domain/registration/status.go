package domain

// RegistrationStatus represents the status of a pending registration
type RegistrationStatus string

const (
	StatusCreated         RegistrationStatus = "created"
	StatusAwaitingPayment RegistrationStatus = "awaiting_payment"
	StatusConfirmed       RegistrationStatus = "confirmed"
	StatusFailed          RegistrationStatus = "failed"
	StatusExpired         RegistrationStatus = "expired"
)

// InFlightStatuses are the non-terminal statuses; each holds a seat.
var InFlightStatuses = []RegistrationStatus{StatusCreated, StatusAwaitingPayment}

func (s RegistrationStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// HoldsSeat reports whether a registration in this status counts against
// course capacity without being an enrollment yet.
func (s RegistrationStatus) HoldsSeat() bool {
	return s == StatusCreated || s == StatusAwaitingPayment
}

// CanTransitionTo encodes the registration state machine.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	switch s {
	case StatusCreated:
		return next == StatusAwaitingPayment || next == StatusFailed || next == StatusExpired
	case StatusAwaitingPayment:
		return next == StatusConfirmed || next == StatusFailed || next == StatusExpired
	}
	return false
}

// PaymentSessionStatus is the gateway side view of a checkout session.
type PaymentSessionStatus string

const (
	SessionOpen     PaymentSessionStatus = "open"
	SessionComplete PaymentSessionStatus = "complete"
	SessionExpired  PaymentSessionStatus = "expired"
	SessionCanceled PaymentSessionStatus = "canceled"
)

func (s PaymentSessionStatus) Valid() bool {
	switch s {
	case SessionOpen, SessionComplete, SessionExpired, SessionCanceled:
		return true
	}
	return false
}

// ReleaseReason says why a held seat was given back.
type ReleaseReason string

const (
	ReasonCanceled              ReleaseReason = "canceled"
	ReasonPaymentFailed         ReleaseReason = "payment_failed"
	ReasonExpired               ReleaseReason = "expired"
	ReasonReconciliationFailure ReleaseReason = "reconciliation_failure"
)

// TargetStatus maps a release reason to the terminal status it produces.
func (r ReleaseReason) TargetStatus() RegistrationStatus {
	if r == ReasonExpired {
		return StatusExpired
	}
	return StatusFailed
}
