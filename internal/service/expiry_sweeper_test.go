package service

import (
	"context"
	"testing"
	"time"

	domain "course-checkout/internal/domain/registration"
)

func TestExpirySweeper_RunSweepsUntilCanceled(t *testing.T) {
	h := newHarness(t)
	reg, err := h.registrations.CreatePendingRegistration(context.Background(), 1, 101)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	h.clock.Advance(time.Hour)

	sweeper := NewExpirySweeper(h.coordinator, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for h.status(t, reg).Status != domain.StatusExpired {
		select {
		case <-deadline:
			t.Fatal("Expected sweeper to expire the registration")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected sweeper to stop after cancel")
	}
}

func TestExpirySweeper_DefaultInterval(t *testing.T) {
	sweeper := NewExpirySweeper(nil, 0)
	if sweeper.Interval != DefaultSweepInterval {
		t.Errorf("Expected interval %s, got %s", DefaultSweepInterval, sweeper.Interval)
	}
}
