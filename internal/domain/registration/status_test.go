package domain

import "testing"

func TestTerminalStatusesAcceptNoTransition(t *testing.T) {
	all := []RegistrationStatus{StatusCreated, StatusAwaitingPayment, StatusConfirmed, StatusFailed, StatusExpired}
	for _, from := range []RegistrationStatus{StatusConfirmed, StatusFailed, StatusExpired} {
		if !from.IsTerminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("%s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestCreatedCannotSkipToConfirmed(t *testing.T) {
	if StatusCreated.CanTransitionTo(StatusConfirmed) {
		t.Fatal("created registration must go through awaiting_payment before confirmation")
	}
	if !StatusCreated.CanTransitionTo(StatusAwaitingPayment) {
		t.Fatal("created -> awaiting_payment should be allowed")
	}
	if !StatusAwaitingPayment.CanTransitionTo(StatusConfirmed) {
		t.Fatal("awaiting_payment -> confirmed should be allowed")
	}
}

func TestInFlightStatusesHoldSeats(t *testing.T) {
	for _, s := range InFlightStatuses {
		if !s.HoldsSeat() || s.IsTerminal() {
			t.Errorf("%s should hold a seat and not be terminal", s)
		}
	}
	if StatusConfirmed.HoldsSeat() {
		t.Error("confirmed registrations are counted as enrollments, not holds")
	}
}

func TestReleaseReasonTargetStatus(t *testing.T) {
	if ReasonExpired.TargetStatus() != StatusExpired {
		t.Errorf("expired reason should map to expired status")
	}
	for _, r := range []ReleaseReason{ReasonCanceled, ReasonPaymentFailed, ReasonReconciliationFailure} {
		if r.TargetStatus() != StatusFailed {
			t.Errorf("%s should map to failed", r)
		}
	}
}
