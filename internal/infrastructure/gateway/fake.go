package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
)

var _ interfaces.PaymentGateway = (*FakeGateway)(nil)

// FakeGateway is a deterministic in-memory gateway for local runs and tests.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*domain.PaymentSession
	seq      int
	failNext []error
	calls    map[string]int
	now      func() time.Time
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		sessions: make(map[string]*domain.PaymentSession),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for session expiry.
func (f *FakeGateway) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// FailNext queues errors returned by the next calls, in order.
func (f *FakeGateway) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, errs...)
}

// Calls returns how many times op was invoked.
func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeGateway) SetStatus(sessionID string, status domain.PaymentSessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	session.Status = status
	return nil
}

func (f *FakeGateway) Complete(sessionID string) error {
	return f.SetStatus(sessionID, domain.SessionComplete)
}

func (f *FakeGateway) Cancel(sessionID string) error {
	return f.SetStatus(sessionID, domain.SessionCanceled)
}

func (f *FakeGateway) Expire(sessionID string) error {
	return f.SetStatus(sessionID, domain.SessionExpired)
}

// Session returns a copy of the stored session.
func (f *FakeGateway) Session(sessionID string) (*domain.PaymentSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, false
	}
	cp := *session
	return &cp, true
}

func (f *FakeGateway) begin(op string) error {
	f.calls[op]++
	if len(f.failNext) == 0 {
		return nil
	}
	err := f.failNext[0]
	f.failNext = f.failNext[1:]
	return err
}

func (f *FakeGateway) CreateSession(ctx context.Context, req interfaces.SessionRequest) (*domain.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("create_session"); err != nil {
		return nil, err
	}

	f.seq++
	session := &domain.PaymentSession{
		SessionID:      fmt.Sprintf("cs_fake_%d", f.seq),
		RegistrationID: req.RegistrationID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         domain.SessionOpen,
		URL:            fmt.Sprintf("https://checkout.fake.local/pay/cs_fake_%d", f.seq),
		ExpiresAt:      req.ExpiresAt,
		ObservedAt:     f.now().UTC(),
	}
	f.sessions[session.SessionID] = session

	cp := *session
	return &cp, nil
}

func (f *FakeGateway) GetSessionStatus(ctx context.Context, sessionID string) (domain.PaymentSessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("get_session"); err != nil {
		return "", err
	}

	session, ok := f.sessions[sessionID]
	if !ok {
		return "", &GatewayError{Op: "get_session", Err: fmt.Errorf("no such session %s", sessionID)}
	}
	if session.Status == domain.SessionOpen && !session.ExpiresAt.IsZero() && !f.now().Before(session.ExpiresAt) {
		session.Status = domain.SessionExpired
	}
	return session.Status, nil
}

func (f *FakeGateway) ExpireSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("expire_session"); err != nil {
		return err
	}

	session, ok := f.sessions[sessionID]
	if !ok {
		return &GatewayError{Op: "expire_session", Err: fmt.Errorf("no such session %s", sessionID)}
	}
	if session.Status != domain.SessionOpen {
		return &GatewayError{Op: "expire_session", Err: fmt.Errorf("session %s is %s", sessionID, session.Status)}
	}
	session.Status = domain.SessionExpired
	return nil
}
