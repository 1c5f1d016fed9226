// internal/domain/state_repository.go
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrStateNotFound is returned when no harvested state exists for a worker.
var ErrStateNotFound = errors.New("state not found")

// StateRecord is a harvested worker state as stored by the master.
// The snapshot is kept in its wire form; the master does not interpret it.
type StateRecord struct {
	WorkerID    string          `json:"worker_id"`
	JobsDone    int64           `json:"jobs_done"`
	Kind        string          `json:"kind"`
	Snapshot    json.RawMessage `json:"snapshot"`
	HarvestedAt time.Time       `json:"harvested_at"`
}

// Validate checks if the state record is valid.
func (r *StateRecord) Validate() error {
	if r.WorkerID == "" {
		return fmt.Errorf("state record worker id cannot be empty")
	}
	if r.Kind == "" {
		return fmt.Errorf("state record kind cannot be empty")
	}
	if r.HarvestedAt.IsZero() {
		return fmt.Errorf("state record harvest time cannot be zero")
	}
	return nil
}

// StateRepository persists harvested worker states.
type StateRepository interface {
	// Save stores the latest state of a worker, replacing any previous one.
	Save(ctx context.Context, record *StateRecord) error
	// Get returns the latest state of a worker.
	Get(ctx context.Context, workerID string) (*StateRecord, error)
	// List returns the latest state of every worker.
	List(ctx context.Context) ([]*StateRecord, error)
}
