package etcd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"distributed-lsi/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// memKV is a map-backed KV understanding single-key and prefix gets.
type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return &clientv3.PutResponse{}, nil
}

func (m *memKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	op := clientv3.OpGet(key, opts...)
	end := op.RangeBytes()

	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if k == key || (len(end) > 0 && k >= key && bytes.Compare([]byte(k), end) < 0) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	resp := &clientv3.GetResponse{}
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(m.data[k])})
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func newTestRepo(kv KV) domain.StateRepository {
	return NewEtcdStateRepository(kv, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStateRepositorySaveAndGet(t *testing.T) {
	kv := newMemKV()
	repo := newTestRepo(kv)
	ctx := context.Background()
	harvested := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := &domain.StateRecord{
		WorkerID:    "w1",
		JobsDone:    2,
		Kind:        "termcount",
		Snapshot:    json.RawMessage(`{"totals":[1,0],"documents":2}`),
		HarvestedAt: harvested,
	}
	require.NoError(t, repo.Save(ctx, rec))
	assert.Contains(t, kv.data, "/lsi/states/w1")

	got, err := repo.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.JobsDone)
	assert.Equal(t, harvested, got.HarvestedAt)
	assert.JSONEq(t, string(rec.Snapshot), string(got.Snapshot))

	rec.JobsDone = 5
	require.NoError(t, repo.Save(ctx, rec))
	got, err = repo.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.JobsDone)
}

func TestStateRepositoryGetMissing(t *testing.T) {
	_, err := newTestRepo(newMemKV()).Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestStateRepositoryRejectsInvalidRecord(t *testing.T) {
	err := newTestRepo(newMemKV()).Save(context.Background(), &domain.StateRecord{Kind: "lsi", HarvestedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStateRepositoryList(t *testing.T) {
	kv := newMemKV()
	repo := newTestRepo(kv)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"w2", "w1"} {
		require.NoError(t, repo.Save(ctx, &domain.StateRecord{
			WorkerID: id, Kind: "lsi", Snapshot: json.RawMessage(`{}`), HarvestedAt: now,
		}))
	}
	kv.data["/lsi/states/broken"] = "not json"
	kv.data["/lsi/workers/w1"] = `{"addr":"x"}`

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "w1", records[0].WorkerID)
	assert.Equal(t, "w2", records[1].WorkerID)
}
