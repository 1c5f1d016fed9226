package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/master"
	"distributed-lsi/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStates map[string]*domain.StateRecord

func (s stubStates) Save(ctx context.Context, record *domain.StateRecord) error { return nil }

func (s stubStates) Get(ctx context.Context, workerID string) (*domain.StateRecord, error) {
	rec, ok := s[workerID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return rec, nil
}

func (s stubStates) List(ctx context.Context) ([]*domain.StateRecord, error) {
	var out []*domain.StateRecord
	for _, rec := range s {
		out = append(out, rec)
	}
	return out, nil
}

type stubWorkers []domain.WorkerEndpoint

func (w stubWorkers) GetWorkers() []domain.WorkerEndpoint { return w }

type stubLeader bool

func (l stubLeader) IsLeader() bool { return bool(l) }

func newTestMux(t *testing.T, queue *master.JobQueue, states stubStates) *http.ServeMux {
	t.Helper()
	return newTestMuxAs(t, queue, states, true)
}

func newTestMuxAs(t *testing.T, queue *master.JobQueue, states stubStates, leading bool) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workers := stubWorkers{{NodeID: "w1", Addr: "10.0.0.1:50052"}}
	svc := usecase.NewJobService(queue, states, workers, stubLeader(leading), logger)

	mux := http.NewServeMux()
	NewJobHandler(svc, logger).RegisterRoutes(mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJob(t *testing.T) {
	queue := master.NewJobQueue(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := newTestMux(t, queue, stubStates{})

	rec := do(mux, http.MethodPost, "/jobs",
		`{"documents":[[{"term_id":0,"weight":1.5},{"term_id":3,"weight":1}],[{"term_id":1,"weight":2}]]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SubmitJobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, 2, resp.Documents)

	job, err := queue.Next(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, resp.ID, job.ID)
	assert.Equal(t, domain.Document{{TermID: 0, Weight: 1.5}, {TermID: 3, Weight: 1}}, job.Documents[0])
}

func TestSubmitJobOnFollower(t *testing.T) {
	queue := master.NewJobQueue(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := newTestMuxAs(t, queue, stubStates{}, false)

	rec := do(mux, http.MethodPost, "/jobs", `{"documents":[[{"term_id":0,"weight":1}]]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, int64(0), queue.Stats().Submitted)

	// Reads are served by every master.
	rec = do(mux, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitJobValidation(t *testing.T) {
	mux := newTestMux(t, master.NewJobQueue(4, slog.New(slog.NewTextHandler(io.Discard, nil))), stubStates{})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"documents":`},
		{name: "no documents", body: `{"documents":[]}`},
		{name: "negative term", body: `{"documents":[[{"term_id":-2,"weight":1}]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQueueStatsAndWorkers(t *testing.T) {
	queue := master.NewJobQueue(4, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, queue.Submit(context.Background(), &domain.Job{ID: "j1"}))
	mux := newTestMux(t, queue, stubStates{})

	rec := do(mux, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats master.QueueStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Queued)

	rec = do(mux, http.MethodGet, "/workers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"node_id":"w1","addr":"10.0.0.1:50052"}]`, rec.Body.String())
}

func TestStates(t *testing.T) {
	harvested := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	states := stubStates{"w1": {
		WorkerID: "w1", JobsDone: 2, Kind: "termcount",
		Snapshot: json.RawMessage(`{"totals":[1,2],"documents":3}`), HarvestedAt: harvested,
	}}
	mux := newTestMux(t, master.NewJobQueue(1, slog.New(slog.NewTextHandler(io.Discard, nil))), states)

	rec := do(mux, http.MethodGet, "/states/w1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"worker_id":"w1","jobs_done":2,"kind":"termcount",
		"snapshot":{"totals":[1,2],"documents":3},"harvested_at":"2024-05-01T12:00:00Z"}`, rec.Body.String())

	rec = do(mux, http.MethodGet, "/states/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodGet, "/states", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []StateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, master.NewJobQueue(1, slog.New(slog.NewTextHandler(io.Discard, nil))), stubStates{})
	rec := do(mux, http.MethodDelete, "/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
