package interfaces

import (
	"context"
	domain "course-checkout/internal/domain/registration"
)

// GatewayEventHandler consumes gateway events pulled off the queue.
type GatewayEventHandler interface {
	OnGatewayEvent(ctx context.Context, event domain.GatewayEvent) error
}

type QueueService interface {
	EnqueueGatewayEvent(ctx context.Context, event domain.GatewayEvent) error
	DequeueGatewayEvent(ctx context.Context) (*domain.GatewayEvent, error)
	SetEventHandler(handler GatewayEventHandler)
	StartWorkers()
	StopWorkers()
}
