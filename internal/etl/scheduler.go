package etl

import (
	"context"
	"log"
	"time"
)

// DefaultInterval between scheduled cycles.
const DefaultInterval = 5 * time.Minute

// Scheduler runs the orchestrator on a fixed interval.
type Scheduler struct {
	orchestrator *Orchestrator
	interval     time.Duration
	log          *log.Logger
}

// NewScheduler creates a scheduler. Zero interval means DefaultInterval.
func NewScheduler(o *Orchestrator, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{orchestrator: o, interval: interval, log: logger}
}

// Run blocks until the context is canceled, running all sources once
// immediately and then on each tick. A failing cycle never stops the
// loop; the job history records the failure.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Printf("scheduler: starting (interval %v)", s.interval)

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Println("scheduler: stopping")
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	results := s.orchestrator.RunAll(ctx)
	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.log.Printf("scheduler: %d/%d cycles failed", failed, len(results))
	}
}
