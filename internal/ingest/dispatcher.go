package ingest

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"intervox/internal/webhook"
)

// Dispatcher runs ingests as detached background tasks so the webhook
// acknowledgement never waits on storage or polling. Outstanding tasks are
// bounded; under a burst beyond the bound, callbacks are acknowledged and
// dropped rather than queued without limit.
type Dispatcher struct {
	Pipeline *Pipeline
	Logger   *slog.Logger

	sem    *semaphore.Weighted
	budget time.Duration
}

func NewDispatcher(pipeline *Pipeline, maxConcurrent int64, logger *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}
	// The per-task budget covers the polling ceiling plus the storage
	// writes that follow it.
	return &Dispatcher{
		Pipeline: pipeline,
		Logger:   logger,
		sem:      semaphore.NewWeighted(maxConcurrent),
		budget:   pipeline.pollTimeout() + 30*time.Second,
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Dispatch hands the callback to a goroutine and reports whether it was
// admitted. The caller never observes completion; failures surface in logs
// only.
func (d *Dispatcher) Dispatch(cb webhook.NormalizedCallback) bool {
	if !d.sem.TryAcquire(1) {
		return false
	}
	go func() {
		defer d.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), d.budget)
		defer cancel()
		d.Pipeline.Ingest(ctx, cb)
	}()
	return true
}
