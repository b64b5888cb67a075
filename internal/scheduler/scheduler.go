// Package scheduler releases queued builds once their quiet period elapses.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/gwtrigger/internal/events"
	"github.com/mattjoyce/gwtrigger/internal/queue"
)

// Scheduler polls the build queue on a fixed tick.
type Scheduler struct {
	interval time.Duration
	queue    QueueService
	events   *events.Hub
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Scheduler. A nil hub gets a private one.
func New(interval time.Duration, q QueueService, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		interval: interval,
		queue:    q,
		events:   hub,
		logger:   logger.With("component", "scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", "interval", s.interval.String())
	s.wg.Add(1)
	go s.tickLoop(ctx)
}

// Stop ends the tick loop and waits for an in-flight tick. Safe to call twice.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Warn("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick releases due builds and returns how many were released.
func (s *Scheduler) tick(ctx context.Context) int {
	builds, err := s.queue.Release(ctx)
	if err != nil {
		s.logger.Error("Failed to release builds", "error", err)
		return 0
	}
	for _, b := range builds {
		s.logger.Info(
			"Released build",
			"build_id", b.ID,
			"job", b.Job,
			"triggers", b.Triggers,
			"cause", b.Cause,
			"parameters", parameterNames(b.Parameters),
		)
		s.events.Publish(events.BuildReleased{
			ID:         b.ID,
			Job:        b.Job,
			Triggers:   b.Triggers,
			Parameters: parameterValues(b.Parameters),
		})
	}
	return len(builds)
}

func parameterValues(params []queue.Parameter) map[string]string {
	if len(params) == 0 {
		return nil
	}
	values := make(map[string]string, len(params))
	for _, p := range params {
		values[p.Name] = p.Value
	}
	return values
}

func parameterNames(params []queue.Parameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}
