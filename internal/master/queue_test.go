package master

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobQueueFIFO(t *testing.T) {
	q := NewJobQueue(4, discardLogger())
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Submit(ctx, &domain.Job{ID: id}))
	}

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Next(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
		require.NoError(t, q.Done("w1"))
	}

	stats := q.Stats()
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(3), stats.Completed["w1"])
	assert.Empty(t, stats.Outstanding)
}

func TestJobQueueTracksOutstanding(t *testing.T) {
	q := NewJobQueue(4, discardLogger())
	ctx := context.Background()
	require.NoError(t, q.Submit(ctx, &domain.Job{ID: "a"}))
	require.NoError(t, q.Submit(ctx, &domain.Job{ID: "b"}))

	assert.ErrorIs(t, q.Done("w1"), ErrNoOutstandingJob)

	_, err := q.Next(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"w1": "a"}, q.Stats().Outstanding)

	// Asking again without JobDone gives up the first job.
	_, err = q.Next(ctx, "w1")
	require.NoError(t, err)
	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Abandoned)
	assert.Equal(t, map[string]string{"w1": "b"}, stats.Outstanding)
}

func TestJobQueueNextBlocksUntilCanceled(t *testing.T) {
	q := NewJobQueue(1, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx, "w1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJobQueueNextWakesOnSubmit(t *testing.T) {
	q := NewJobQueue(1, discardLogger())
	got := make(chan *domain.Job, 1)
	go func() {
		job, err := q.Next(context.Background(), "w1")
		if err == nil {
			got <- job
		}
	}()

	require.NoError(t, q.Submit(context.Background(), &domain.Job{ID: "late"}))
	select {
	case job := <-got:
		assert.Equal(t, "late", job.ID)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Submit")
	}
}

func TestJobQueueSubmit(t *testing.T) {
	q := NewJobQueue(1, discardLogger())

	err := q.Submit(context.Background(), &domain.Job{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	require.NoError(t, q.Submit(context.Background(), &domain.Job{ID: "a"}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Submit(ctx, &domain.Job{ID: "b"}), context.DeadlineExceeded)
}

func queuedGauge(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.JobsQueued.Write(&m))
	return m.GetGauge().GetValue()
}

func TestJobQueueGaugeTracksWaitingJobs(t *testing.T) {
	base := queuedGauge(t)
	q := NewJobQueue(1, discardLogger())
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, &domain.Job{ID: "a"}))
	assert.Equal(t, base+1, queuedGauge(t))

	// A submit that gives up on a full queue leaves the gauge unchanged.
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Submit(timeout, &domain.Job{ID: "b"}), context.DeadlineExceeded)
	assert.Equal(t, base+1, queuedGauge(t))

	_, err := q.Next(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, base, queuedGauge(t))

	// A worker already waiting takes the job as it is sent.
	got := make(chan string, 1)
	go func() {
		job, err := q.Next(ctx, "w2")
		if err == nil {
			got <- job.ID
		}
	}()
	require.NoError(t, q.Submit(ctx, &domain.Job{ID: "c"}))
	select {
	case id := <-got:
		assert.Equal(t, "c", id)
	case <-time.After(time.Second):
		t.Fatal("waiting worker did not receive the job")
	}
	assert.Equal(t, base, queuedGauge(t))
}
