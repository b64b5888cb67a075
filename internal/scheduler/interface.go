package scheduler

import (
	"context"

	"github.com/mattjoyce/gwtrigger/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/gwtrigger/internal/scheduler QueueService

// QueueService defines the queue operations used by the scheduler.
type QueueService interface {
	Release(ctx context.Context) ([]*queue.Build, error)
}
