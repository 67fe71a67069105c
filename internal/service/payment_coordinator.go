package service

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	"course-checkout/internal/infrastructure/metrics"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	serviceInterfaces "course-checkout/internal/interfaces/service"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/logger"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSessionTTL      = 30 * time.Minute
	DefaultPollTimeout     = 5 * time.Second
	DefaultSweepBatchSize  = 100
	DefaultSessionCacheTTL = 24 * time.Hour
)

var (
	_ serviceInterfaces.PaymentCoordinator = (*PaymentCoordinator)(nil)
	_ interfaces.GatewayEventHandler       = (*PaymentCoordinator)(nil)
)

type CoordinatorConfig struct {
	SessionTTL      time.Duration
	PollTimeout     time.Duration
	SweepBatchSize  int
	SessionCacheTTL time.Duration
	// DefaultCurrency prices courses that carry no currency of their own.
	DefaultCurrency string
	Now             func() time.Time
}

// PaymentCoordinator owns the registration state machine between seat hold
// and enrollment. The registration id is the linearization key: every
// transition is a version-guarded write, so the first terminal status
// recorded wins and later conflicting observations are discarded.
type PaymentCoordinator struct {
	registrations    serviceInterfaces.RegistrationService
	registrationRepo interfaces.RegistrationRepository
	courseRepo       interfaces.CourseRepository
	gateway          interfaces.PaymentGateway
	sessions         interfaces.SessionCache
	reconciliation   serviceInterfaces.ReconciliationService
	metrics          *metrics.Metrics
	cfg              CoordinatorConfig
}

func NewPaymentCoordinator(
	registrations serviceInterfaces.RegistrationService,
	registrationRepo interfaces.RegistrationRepository,
	courseRepo interfaces.CourseRepository,
	gateway interfaces.PaymentGateway,
	sessions interfaces.SessionCache,
	reconciliation serviceInterfaces.ReconciliationService,
	m *metrics.Metrics,
	cfg CoordinatorConfig,
) *PaymentCoordinator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	if cfg.SessionCacheTTL <= 0 {
		cfg.SessionCacheTTL = DefaultSessionCacheTTL
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PaymentCoordinator{
		registrations:    registrations,
		registrationRepo: registrationRepo,
		courseRepo:       courseRepo,
		gateway:          gateway,
		sessions:         sessions,
		reconciliation:   reconciliation,
		metrics:          m,
		cfg:              cfg,
	}
}

func (c *PaymentCoordinator) now() time.Time {
	return c.cfg.Now().UTC()
}

func regLog(reg *domain.PendingRegistration) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"registration_id": reg.RegistrationID,
		"session_id":      reg.SessionID(),
		"status":          reg.Status,
	})
}

// StartPaymentSession opens a checkout session for a Created registration and
// moves it to AwaitingPayment. A gateway failure leaves it Created so the
// call can be retried. Calling it again once AwaitingPayment returns the
// session already bound.
func (c *PaymentCoordinator) StartPaymentSession(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, *domain.PaymentSession, error) {
	reg, err := c.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, nil, err
	}

	switch reg.Status {
	case domain.StatusAwaitingPayment:
		return reg, c.knownSession(ctx, reg), nil
	case domain.StatusCreated:
	default:
		return nil, nil, invalidState(reg, "start payment for")
	}

	now := c.now()
	if reg.Expired(now) {
		if _, err := c.registrations.Release(ctx, reg.RegistrationID, domain.ReasonExpired); err != nil && !isInvalidState(err) {
			return nil, nil, err
		}
		return nil, nil, apperrors.Clone(apperrors.ErrInvalidState, "registration expired before payment was started")
	}

	course, err := c.courseRepo.GetByID(ctx, reg.CourseID)
	if err != nil {
		return nil, nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load course")
	}
	if course == nil {
		return nil, nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("course %d not found", reg.CourseID))
	}

	currency := course.Currency
	if currency == "" {
		currency = c.cfg.DefaultCurrency
	}

	expiresAt := ceilSecond(now.Add(c.cfg.SessionTTL))
	session, err := c.gateway.CreateSession(ctx, interfaces.SessionRequest{
		RegistrationID: reg.RegistrationID,
		Amount:         course.Price,
		Currency:       currency,
		Description:    course.Name,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		regLog(reg).WithError(err).Warn("Failed to open payment session")
		return nil, nil, apperrors.WrapAs(err, apperrors.ErrGateway, "failed to open payment session")
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = expiresAt
	}

	sessionID := session.SessionID
	updated := *reg
	updated.Status = domain.StatusAwaitingPayment
	updated.PaymentSessionID = &sessionID
	updated.ExpiresAt = session.ExpiresAt
	updated.Version++
	updated.UpdatedAt = now

	if err := c.registrationRepo.UpdateWithOptimisticLock(ctx, &updated); err != nil {
		return c.resolveLostStart(ctx, reg, session, err)
	}

	c.remember(ctx, session)
	c.metrics.RecordTransition(string(domain.StatusCreated), string(domain.StatusAwaitingPayment))
	regLog(&updated).WithField("expires_at", updated.ExpiresAt).Info("Payment session started")

	return &updated, session, nil
}

// ceilSecond rounds t up to a whole second; gateways take unix seconds and
// the deadline must never land before now+TTL.
func ceilSecond(t time.Time) time.Time {
	if truncated := t.Truncate(time.Second); truncated.Before(t) {
		return truncated.Add(time.Second)
	}
	return t
}

// resolveLostStart handles a failed bind of a freshly opened session. If a
// concurrent call bound the same session the result is shared; otherwise the
// session is orphaned and expired at the gateway.
func (c *PaymentCoordinator) resolveLostStart(ctx context.Context, reg *domain.PendingRegistration, session *domain.PaymentSession, cause error) (*domain.PendingRegistration, *domain.PaymentSession, error) {
	current, err := c.registrationRepo.GetByID(ctx, reg.RegistrationID)
	if err == nil && current != nil && current.Status == domain.StatusAwaitingPayment && current.SessionID() == session.SessionID {
		return current, session, nil
	}

	c.expireAtGateway(ctx, reg, session.SessionID)

	if errors.Is(cause, interfaces.ErrVersionConflict) {
		return nil, nil, apperrors.Clone(apperrors.ErrInvalidState, "registration changed while the payment session was being opened")
	}
	return nil, nil, apperrors.WrapAs(cause, apperrors.ErrInternal, "failed to bind payment session")
}

// Confirm verifies with the gateway that the bound session is paid and, if
// so, commits the enrollment. An open session yields PAYMENT_PENDING.
func (c *PaymentCoordinator) Confirm(ctx context.Context, registrationID uuid.UUID) (*domain.Enrollment, error) {
	reg, err := c.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	switch reg.Status {
	case domain.StatusConfirmed:
		return c.registrations.Commit(ctx, registrationID)
	case domain.StatusAwaitingPayment:
	default:
		return nil, invalidState(reg, "confirm")
	}

	status, err := c.observe(ctx, reg)
	if err != nil {
		return nil, err
	}

	switch status {
	case domain.SessionComplete:
		return c.commitPaid(ctx, reg)
	case domain.SessionOpen:
		if reg.Expired(c.now()) {
			if err := c.release(ctx, reg, domain.ReasonExpired); err != nil {
				return nil, err
			}
			return nil, apperrors.Clone(apperrors.ErrInvalidState, "payment session expired")
		}
		return nil, apperrors.Clone(apperrors.ErrPaymentPending, "")
	case domain.SessionCanceled:
		if err := c.release(ctx, reg, domain.ReasonPaymentFailed); err != nil {
			return nil, err
		}
		return nil, apperrors.Clone(apperrors.ErrInvalidState, "payment was canceled")
	default:
		if err := c.release(ctx, reg, domain.ReasonExpired); err != nil {
			return nil, err
		}
		return nil, apperrors.Clone(apperrors.ErrInvalidState, "payment session expired")
	}
}

// Cancel releases the seat at the caller's request and then asks the
// gateway to expire the open session. The release comes first so a payment
// completing in between is caught as a late payment. Repeating a cancel is a
// no-op; any other terminal registration yields INVALID_STATE.
func (c *PaymentCoordinator) Cancel(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error) {
	released, err := c.registrations.Release(ctx, registrationID, domain.ReasonCanceled)
	if err != nil {
		return nil, err
	}
	if released.FailureReason != string(domain.ReasonCanceled) {
		return nil, invalidState(released, "cancel")
	}

	if sessionID := released.SessionID(); sessionID != "" {
		c.expireAtGateway(ctx, released, sessionID)
	}
	return released, nil
}

// Poll asks the gateway for the current session status and applies it.
func (c *PaymentCoordinator) Poll(ctx context.Context, registrationID uuid.UUID) (*domain.PendingRegistration, error) {
	reg, err := c.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status != domain.StatusAwaitingPayment {
		return reg, nil
	}

	status, err := c.observe(ctx, reg)
	if err != nil {
		return nil, err
	}

	if err := c.apply(ctx, reg, status); err != nil && !isInvalidState(err) {
		return nil, err
	}
	return c.registrations.GetRegistration(ctx, registrationID)
}

func (c *PaymentCoordinator) GetRegistrationStatus(ctx context.Context, registrationID uuid.UUID) (*domain.RegistrationStatusResponse, error) {
	reg, err := c.registrations.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	resp := &domain.RegistrationStatusResponse{Registration: reg}
	if reg.Status == domain.StatusConfirmed {
		enrollment, err := c.registrationRepo.GetEnrollmentByRegistrationID(ctx, registrationID)
		if err != nil {
			return nil, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to load enrollment")
		}
		resp.Enrollment = enrollment
	}
	if sessionID := reg.SessionID(); sessionID != "" {
		if session, err := c.sessions.GetSession(ctx, sessionID); err == nil {
			resp.Session = session
		}
	}
	return resp, nil
}

// OnGatewayEvent applies a gateway notification. It is safe to call any
// number of times with the same event: unknown sessions, duplicates and
// notifications for terminal registrations are discarded with nil.
func (c *PaymentCoordinator) OnGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	if event.SessionID == "" || !event.Status.Valid() {
		return apperrors.Clone(apperrors.ErrValidation, "gateway event needs a session id and a known status")
	}

	log := logger.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"session_id": event.SessionID,
		"event":      event.Status,
	})

	reg, err := c.registrationRepo.GetBySessionID(ctx, event.SessionID)
	if err != nil {
		return apperrors.WrapAs(err, apperrors.ErrInternal, "failed to look up registration by session")
	}
	if reg == nil {
		log.Warn("Gateway event for unknown session discarded")
		c.metrics.RecordGatewayEvent(string(event.Status), "unknown_session")
		return nil
	}

	c.remember(ctx, &domain.PaymentSession{
		SessionID:      event.SessionID,
		RegistrationID: reg.RegistrationID,
		Status:         event.Status,
		ExpiresAt:      reg.ExpiresAt,
		ObservedAt:     c.now(),
	})

	if reg.Status != domain.StatusAwaitingPayment {
		c.discardStale(ctx, reg, event.Status)
		return nil
	}

	err = c.apply(ctx, reg, event.Status)
	switch {
	case err == nil:
		c.metrics.RecordGatewayEvent(string(event.Status), "applied")
		return nil
	case isInvalidState(err):
		c.metrics.RecordGatewayEvent(string(event.Status), "stale")
		log.WithError(err).Info("Gateway event lost to a concurrent transition")
		return nil
	default:
		c.metrics.RecordGatewayEvent(string(event.Status), "error")
		return err
	}
}

// SweepExpired closes registrations past their deadline. A Created one is
// expired directly. An AwaitingPayment one gets a single time-boxed poll
// first so a payment completed before the deadline is still honoured.
func (c *PaymentCoordinator) SweepExpired(ctx context.Context) (int, error) {
	now := c.now()
	regs, err := c.registrationRepo.ListPastDeadline(ctx, now, c.cfg.SweepBatchSize)
	if err != nil {
		return 0, apperrors.WrapAs(err, apperrors.ErrInternal, "failed to list expired registrations")
	}

	expired := 0
	var errs []error
	for _, reg := range regs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		if reg.Status == domain.StatusAwaitingPayment {
			status, err := c.observe(ctx, reg)
			if err == nil && status == domain.SessionComplete {
				if _, err := c.commitPaid(ctx, reg); err != nil && !isInvalidState(err) {
					errs = append(errs, err)
				}
				continue
			}
			if err != nil {
				regLog(reg).WithError(err).Warn("Sweep could not poll gateway, expiring anyway")
			}
		}

		if err := c.release(ctx, reg, domain.ReasonExpired); err != nil {
			if !isInvalidState(err) {
				errs = append(errs, err)
			}
			continue
		}
		expired++
		if sessionID := reg.SessionID(); sessionID != "" {
			c.expireAtGateway(ctx, reg, sessionID)
		}
	}

	c.metrics.RecordSweepExpired(expired)
	if expired > 0 {
		logger.Info("Expiry sweep expired %d of %d overdue registrations", expired, len(regs))
	}
	return expired, errors.Join(errs...)
}

// apply moves an AwaitingPayment registration according to an observed
// gateway status.
func (c *PaymentCoordinator) apply(ctx context.Context, reg *domain.PendingRegistration, status domain.PaymentSessionStatus) error {
	switch status {
	case domain.SessionComplete:
		_, err := c.commitPaid(ctx, reg)
		return err
	case domain.SessionCanceled:
		return c.release(ctx, reg, domain.ReasonPaymentFailed)
	case domain.SessionExpired:
		return c.release(ctx, reg, domain.ReasonExpired)
	default:
		if reg.Expired(c.now()) {
			if err := c.release(ctx, reg, domain.ReasonExpired); err != nil {
				return err
			}
			c.expireAtGateway(ctx, reg, reg.SessionID())
		}
		return nil
	}
}

// commitPaid commits a registration whose session the gateway reports as
// paid. A rejected commit means money was taken without a seat: it is
// reported as a reconciliation failure, never retried silently.
func (c *PaymentCoordinator) commitPaid(ctx context.Context, reg *domain.PendingRegistration) (*domain.Enrollment, error) {
	enrollment, err := c.registrations.Commit(ctx, reg.RegistrationID)
	if err == nil {
		return enrollment, nil
	}

	switch {
	case errors.Is(err, apperrors.ErrCapacityExceeded), errors.Is(err, apperrors.ErrAlreadyEnrolled):
		if reportErr := c.reconciliation.Report(ctx, reg, reg.SessionID(), ReasonCommitRejected+": "+err.Error()); reportErr != nil {
			regLog(reg).WithError(reportErr).Error("Reconciliation failure could not be persisted")
		}
		if _, relErr := c.registrations.Release(ctx, reg.RegistrationID, domain.ReasonReconciliationFailure); relErr != nil {
			regLog(reg).WithError(relErr).Error("Failed to release registration after reconciliation failure")
		}
		return nil, apperrors.WrapAs(err, apperrors.ErrReconciliationFailure, "")

	case isInvalidState(err):
		// A terminal status was recorded first; re-read to see which.
		current, getErr := c.registrations.GetRegistration(ctx, reg.RegistrationID)
		if getErr == nil && current.Status != domain.StatusConfirmed {
			c.discardStale(ctx, current, domain.SessionComplete)
		}
		return nil, err

	default:
		// Left AwaitingPayment; a later poll, event or sweep commits it.
		regLog(reg).WithError(err).Warn("Commit failed, registration stays awaiting payment")
		return nil, err
	}
}

// discardStale logs a notification that arrived after a terminal status.
// A completed payment for a Failed or Expired registration is money without
// a seat and is reported.
func (c *PaymentCoordinator) discardStale(ctx context.Context, reg *domain.PendingRegistration, status domain.PaymentSessionStatus) {
	latePayment := status == domain.SessionComplete &&
		(reg.Status == domain.StatusFailed || reg.Status == domain.StatusExpired) &&
		reg.FailureReason != string(domain.ReasonReconciliationFailure)

	if !latePayment {
		regLog(reg).WithField("observed", status).Info("Stale gateway status discarded")
		c.metrics.RecordGatewayEvent(string(status), "stale")
		return
	}

	c.metrics.RecordGatewayEvent(string(status), "late_payment")
	if err := c.reconciliation.Report(ctx, reg, reg.SessionID(), ReasonLatePayment); err != nil {
		regLog(reg).WithError(err).Error("Reconciliation failure could not be persisted")
	}
}

func (c *PaymentCoordinator) release(ctx context.Context, reg *domain.PendingRegistration, reason domain.ReleaseReason) error {
	_, err := c.registrations.Release(ctx, reg.RegistrationID, reason)
	return err
}

// observe polls the gateway within the poll timeout and caches the result.
func (c *PaymentCoordinator) observe(ctx context.Context, reg *domain.PendingRegistration) (domain.PaymentSessionStatus, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	status, err := c.gateway.GetSessionStatus(pollCtx, reg.SessionID())
	if err != nil {
		return "", apperrors.WrapAs(err, apperrors.ErrGateway, "failed to query payment session")
	}

	c.remember(ctx, &domain.PaymentSession{
		SessionID:      reg.SessionID(),
		RegistrationID: reg.RegistrationID,
		Status:         status,
		ExpiresAt:      reg.ExpiresAt,
		ObservedAt:     c.now(),
	})
	return status, nil
}

func (c *PaymentCoordinator) expireAtGateway(ctx context.Context, reg *domain.PendingRegistration, sessionID string) {
	if sessionID == "" {
		return
	}
	expireCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	if err := c.gateway.ExpireSession(expireCtx, sessionID); err != nil {
		regLog(reg).WithError(err).Warn("Failed to expire payment session at gateway")
	}
}

// knownSession returns the cached copy of the bound session or a minimal one.
func (c *PaymentCoordinator) knownSession(ctx context.Context, reg *domain.PendingRegistration) *domain.PaymentSession {
	if session, err := c.sessions.GetSession(ctx, reg.SessionID()); err == nil && session != nil {
		return session
	}
	return &domain.PaymentSession{
		SessionID:      reg.SessionID(),
		RegistrationID: reg.RegistrationID,
		Status:         domain.SessionOpen,
		ExpiresAt:      reg.ExpiresAt,
	}
}

func (c *PaymentCoordinator) remember(ctx context.Context, session *domain.PaymentSession) {
	if err := c.sessions.SetSession(ctx, session, c.cfg.SessionCacheTTL); err != nil {
		logger.WithField("session_id", session.SessionID).WithError(err).Warn("Failed to cache payment session")
	}
}
