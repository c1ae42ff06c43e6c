// internal/app/system/tasks/tasks.go

// Package tasks provides cancellable timer-driven work.
//
// Every repeating or delayed operation in the engine (verification
// polling, success-display delays, splash ceilings) is started through
// this package, which hands the caller a Handle. The Handle makes the
// cancel-on-teardown obligation explicit: whoever starts a task owns a
// value that must be cancelled, rather than relying on an interval
// variable captured in a cleanup convention.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named repeating task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Handle controls a running task. Cancel is idempotent and safe to call
// from any goroutine, including from inside the task's own Run.
type Handle struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Cancel stops the task's timer exactly once. Calling Cancel again is a
// no-op. Use Done to wait for the task goroutine to finish.
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
}

// Done returns a channel closed when the task has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start runs job on its interval until the handle is cancelled or ctx
// ends. Run errors are logged, not fatal; the job keeps its schedule.
func Start(ctx context.Context, job Job, logger *zap.Logger) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := job.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("task run failed",
						zap.String("task", job.Name),
						zap.Error(err))
				}
			}
		}
	}()

	return h
}

// After runs fn once after delay, unless cancelled first.
func After(ctx context.Context, delay time.Duration, fn func()) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			fn()
		}
	}()

	return h
}
