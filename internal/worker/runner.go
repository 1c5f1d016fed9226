// internal/worker/runner.go
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"distributed-lsi/internal/domain"
)

// ErrLoopRunning is returned when the job loop is started twice.
var ErrLoopRunning = errors.New("job loop is already running")

// Runner drives a worker's job loop on a dedicated goroutine. A loop that
// fails is restarted after a backoff, except when the worker is not
// initialized.
type Runner struct {
	ctx     context.Context
	worker  *Worker
	backoff time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner whose loops live at most as long as ctx.
func NewRunner(ctx context.Context, w *Worker, backoff time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		ctx:     ctx,
		worker:  w,
		backoff: backoff,
		logger:  logger.With("component", "job-loop"),
	}
}

// Start launches the job loop. It fails with domain.ErrUninitialized before
// the worker is initialized and with ErrLoopRunning if a loop is active.
func (r *Runner) Start() error {
	if _, _, err := r.worker.handle(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrLoopRunning
		}
	}

	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go func() {
		defer close(done)
		r.run(ctx)
	}()
	return nil
}

func (r *Runner) run(ctx context.Context) {
	r.logger.Info("job loop started", "worker_id", r.worker.ID())
	defer r.logger.Info("job loop stopped", "worker_id", r.worker.ID())

	for {
		err := r.worker.RequestJob(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrUninitialized) {
			r.logger.Error("job loop cannot run", "error", err)
			return
		}
		r.logger.Warn("job loop failed, restarting", "worker_id", r.worker.ID(), "error", err, "backoff", r.backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.backoff):
		}
	}
}

// Running reports whether a job loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stop cancels the active loop, if any, and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
