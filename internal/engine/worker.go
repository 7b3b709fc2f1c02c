package engine

import (
	"context"
	"time"

	"webx/pkg/logging"
)

// Worker drives the engine on a fixed tick until its context is cancelled.
type Worker struct {
	engine   *Engine
	interval time.Duration
	logger   logging.Logger
}

func NewWorker(e *Engine, interval time.Duration, logger logging.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{engine: e, interval: interval, logger: logger}
}

// Run blocks, processing active jobs once per tick. It returns when ctx is
// cancelled; in-flight items stay processing (no stale-claim recovery yet).
func (w *Worker) Run(ctx context.Context) {
	w.logger.WithField("interval", w.interval.String()).Info("Crawl worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First pass runs immediately; new jobs should not wait out a full tick.
	w.engine.ProcessActiveJobsOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Crawl worker stopped")
			return
		case <-ticker.C:
			w.engine.ProcessActiveJobsOnce(ctx)
		}
	}
}
