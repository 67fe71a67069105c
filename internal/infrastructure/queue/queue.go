package queue

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	apperrors "course-checkout/pkg/errors"
	"course-checkout/pkg/logger"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultJobTimeout     = 30 * time.Second
	DefaultMaxAttempts    = 5
	defaultDequeueTimeout = 5 * time.Second
)

type Queue struct {
	gatewayEvents chan domain.GatewayEvent

	workers     int
	maxAttempts int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
	mu          sync.RWMutex

	handler interfaces.GatewayEventHandler
}

func NewInMemoryQueue(bufferSize, workers, maxAttempts int) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Queue{
		gatewayEvents: make(chan domain.GatewayEvent, bufferSize),
		workers:       workers,
		maxAttempts:   maxAttempts,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (q *Queue) SetEventHandler(handler interfaces.GatewayEventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

func (q *Queue) StartWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	if q.handler == nil {
		logger.Warn("Gateway event handler not set, workers cannot process events")
		return
	}

	logger.Info("Starting %d queue workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.gatewayEventWorker(i)
	}

	q.started = true
	logger.Info("Queue workers started successfully")
}

func (q *Queue) StopWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}

	logger.Info("Stopping queue workers...")
	q.cancel()
	q.wg.Wait()
	q.started = false
	logger.Info("Queue workers stopped")
}

func (q *Queue) EnqueueGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	select {
	case q.gatewayEvents <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("gateway event queue is full")
	}
}

func (q *Queue) DequeueGatewayEvent(ctx context.Context) (*domain.GatewayEvent, error) {
	select {
	case event := <-q.gatewayEvents:
		return &event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) gatewayEventWorker(workerID int) {
	defer q.wg.Done()

	logger.Info("Gateway event worker %d started", workerID)

	for {
		select {
		case <-q.ctx.Done():
			logger.Info("Gateway event worker %d stopped", workerID)
			return
		default:
			ctx, cancel := context.WithTimeout(q.ctx, defaultDequeueTimeout)
			event, err := q.DequeueGatewayEvent(ctx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				logger.Error("Gateway event worker %d error: %v", workerID, err)
				continue
			}

			if event != nil {
				q.mu.RLock()
				handler := q.handler
				q.mu.RUnlock()
				processEvent(q.ctx, workerID, handler, *event, q.maxAttempts, q.EnqueueGatewayEvent)
			}
		}
	}
}

// processEvent hands one event to the handler and re-enqueues it when the
// failure is retryable and attempts remain.
func processEvent(parent context.Context, workerID int, handler interfaces.GatewayEventHandler, event domain.GatewayEvent,
	maxAttempts int, requeue func(context.Context, domain.GatewayEvent) error) {
	log := logger.WithFields(map[string]interface{}{
		"worker":     workerID,
		"event_id":   event.EventID,
		"session_id": event.SessionID,
		"status":     event.Status,
		"attempt":    event.Attempts + 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), DefaultJobTimeout)
	defer cancel()

	err := handler.OnGatewayEvent(ctx, event)
	if err == nil {
		log.Debug("Gateway event processed")
		return
	}

	event.Attempts++
	if !Retryable(err) || event.Attempts >= maxAttempts {
		log.WithError(err).Error("Gateway event dropped")
		return
	}

	log.WithError(err).Warn("Gateway event failed, re-enqueueing")
	if parent.Err() != nil {
		return
	}
	if err := requeue(parent, event); err != nil {
		log.WithError(err).Error("Failed to re-enqueue gateway event")
	}
}

// Retryable reports whether a handler failure may succeed on redelivery.
func Retryable(err error) bool {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrReconciliationFailure.Code,
		apperrors.ErrValidation.Code,
		apperrors.ErrNotFound.Code,
		apperrors.ErrInvalidState.Code:
		return false
	}
	return true
}
