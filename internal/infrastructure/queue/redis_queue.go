package queue

import (
	"context"
	domain "course-checkout/internal/domain/registration"
	interfaces "course-checkout/internal/interfaces/infrastructure"
	"course-checkout/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	GatewayEventQueueKey  = "queue:gateway_events"
	DefaultDequeueTimeout = 2 * time.Second
	WorkerSleepDuration   = 50 * time.Millisecond
)

// RedisQueue shares gateway events between service replicas.
type RedisQueue struct {
	client redis.UniversalClient

	workers     int
	maxAttempts int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
	mu          sync.RWMutex

	handler interfaces.GatewayEventHandler
}

// NewRedisQueue creates a new Redis-based queue service
func NewRedisQueue(client redis.UniversalClient, workers, maxAttempts int) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &RedisQueue{
		client:      client,
		workers:     workers,
		maxAttempts: maxAttempts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (rq *RedisQueue) SetEventHandler(handler interfaces.GatewayEventHandler) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.handler = handler
}

func (rq *RedisQueue) StartWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.started {
		return
	}

	if rq.handler == nil {
		logger.Warn("Gateway event handler not set, workers cannot process events")
		return
	}

	logger.Info("Starting %d Redis queue workers", rq.workers)

	for i := 0; i < rq.workers; i++ {
		rq.wg.Add(1)
		go rq.gatewayEventWorker(i)
	}

	rq.started = true
	logger.Info("Redis queue workers started successfully")
}

func (rq *RedisQueue) StopWorkers() {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if !rq.started {
		return
	}

	logger.Info("Stopping Redis queue workers...")
	rq.cancel()
	rq.wg.Wait()
	rq.started = false
	logger.Info("Redis queue workers stopped")
}

// EnqueueGatewayEvent adds a gateway event to the Redis queue
func (rq *RedisQueue) EnqueueGatewayEvent(ctx context.Context, event domain.GatewayEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway event: %w", err)
	}

	if err := rq.client.LPush(ctx, GatewayEventQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue gateway event: %w", err)
	}

	logger.Debug("Enqueued gateway event %s for session %s", event.EventID, event.SessionID)
	return nil
}

// DequeueGatewayEvent retrieves a gateway event from the Redis queue. It
// returns (nil, nil) when nothing arrived within the poll window.
func (rq *RedisQueue) DequeueGatewayEvent(ctx context.Context) (*domain.GatewayEvent, error) {
	result, err := rq.client.BRPop(ctx, DefaultDequeueTimeout, GatewayEventQueueKey).Result()
	if err != nil {
		if err == redis.Nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue gateway event: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected Redis BRPOP result format")
	}

	var event domain.GatewayEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway event: %w", err)
	}

	return &event, nil
}

func (rq *RedisQueue) gatewayEventWorker(workerID int) {
	defer rq.wg.Done()

	logger.Info("Redis gateway event worker %d started", workerID)

	for {
		select {
		case <-rq.ctx.Done():
			logger.Info("Redis gateway event worker %d stopped", workerID)
			return
		default:
			event, err := rq.DequeueGatewayEvent(rq.ctx)
			if err != nil {
				if rq.ctx.Err() != nil {
					continue
				}
				logger.Error("Redis gateway event worker %d error: %v", workerID, err)
				time.Sleep(WorkerSleepDuration)
				continue
			}

			if event == nil {
				continue
			}

			rq.mu.RLock()
			handler := rq.handler
			rq.mu.RUnlock()
			processEvent(rq.ctx, workerID, handler, *event, rq.maxAttempts, rq.EnqueueGatewayEvent)
		}
	}
}
