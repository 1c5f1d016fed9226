package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"distributed-lsi/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRequiresInitializedWorker(t *testing.T) {
	w := New(factoryFor(&recordingModel{}), discardLogger())
	r := NewRunner(context.Background(), w, time.Millisecond, discardLogger())

	assert.ErrorIs(t, r.Start(), domain.ErrUninitialized)
	assert.False(t, r.Running())
}

func TestRunnerRejectsSecondStart(t *testing.T) {
	w := newInitializedWorker(t, &recordingModel{}, newFakeDispatcher())
	r := NewRunner(context.Background(), w, time.Millisecond, discardLogger())
	t.Cleanup(r.Stop)

	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Start(), ErrLoopRunning)
	assert.True(t, r.Running())

	r.Stop()
	assert.False(t, r.Running())
	require.NoError(t, r.Start())
}

func TestRunnerRestartsAfterTransportFailure(t *testing.T) {
	d := newFakeDispatcher(&domain.Job{ID: "J1"}, &domain.Job{ID: "J2"})
	d.getErrs = []error{errors.New("unavailable"), errors.New("unavailable")}
	m := &recordingModel{}
	w := newInitializedWorker(t, m, d)

	r := NewRunner(context.Background(), w, time.Millisecond, discardLogger())
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)

	require.Eventually(t, func() bool { return d.doneCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), w.JobsDone())
}

func TestRunnerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := newInitializedWorker(t, &recordingModel{}, newFakeDispatcher())
	r := NewRunner(ctx, w, time.Millisecond, discardLogger())
	require.NoError(t, r.Start())

	cancel()
	require.Eventually(t, func() bool { return !r.Running() }, time.Second, 5*time.Millisecond)
}
