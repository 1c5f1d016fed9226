package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"distributed-lsi/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcher hands out queued jobs and records completions.
type fakeDispatcher struct {
	jobs chan *domain.Job

	mu         sync.Mutex
	getErrs    []error // returned by successive GetJob calls before jobs are served
	jobDoneErr error
	requests   []string
	done       int
}

func newFakeDispatcher(jobs ...*domain.Job) *fakeDispatcher {
	d := &fakeDispatcher{jobs: make(chan *domain.Job, len(jobs)+16)}
	for _, j := range jobs {
		d.jobs <- j
	}
	return d
}

func (d *fakeDispatcher) GetJob(ctx context.Context, workerID string) (*domain.Job, error) {
	d.mu.Lock()
	d.requests = append(d.requests, workerID)
	if len(d.getErrs) > 0 {
		err := d.getErrs[0]
		d.getErrs = d.getErrs[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	select {
	case job := <-d.jobs:
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDispatcher) JobDone(_ context.Context, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.jobDoneErr != nil {
		return d.jobDoneErr
	}
	d.done++
	return nil
}

func (d *fakeDispatcher) doneCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// recordingModel remembers the order jobs were accumulated in. Jobs whose id
// is in failOn are rejected.
type recordingModel struct {
	seen   []string
	failOn map[string]bool
}

type recordingSnapshot struct {
	Seen []string
}

func (s *recordingSnapshot) Kind() string { return "recording" }

func (m *recordingModel) Accumulate(job *domain.Job) error {
	if m.failOn[job.ID] {
		return errors.New("bad batch")
	}
	m.seen = append(m.seen, job.ID)
	return nil
}

func (m *recordingModel) Snapshot() domain.Snapshot {
	return &recordingSnapshot{Seen: append([]string(nil), m.seen...)}
}

// steppingModel applies every job in two halves with a pause in between, so
// an unsynchronized reader would see an odd value.
type steppingModel struct {
	value    int64
	inside   atomic.Int32
	torn     atomic.Int32
	pause    time.Duration
	entered  chan struct{}
	entering sync.Once
}

type steppingSnapshot struct {
	Value int64
}

func (s *steppingSnapshot) Kind() string { return "stepping" }

func (m *steppingModel) Accumulate(*domain.Job) error {
	m.inside.Store(1)
	m.value++
	if m.entered != nil {
		m.entering.Do(func() { close(m.entered) })
	}
	time.Sleep(m.pause)
	m.value++
	m.inside.Store(0)
	return nil
}

func (m *steppingModel) Snapshot() domain.Snapshot {
	if m.inside.Load() != 0 {
		m.torn.Add(1)
	}
	return &steppingSnapshot{Value: m.value}
}

func factoryFor(m domain.Model) domain.ModelFactory {
	return func(domain.ModelParams) (domain.Model, error) { return m, nil }
}
