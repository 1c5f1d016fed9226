// internal/domain/model.go
package domain

// ModelParams is the opaque configuration used to construct a Model.
// The worker forwards it verbatim to its ModelFactory.
type ModelParams map[string]any

// Model is an incrementally updated model owned by a single worker.
// Implementations are not required to be safe for concurrent use.
type Model interface {
	// Accumulate folds the job into the model without finalizing it.
	Accumulate(job *Job) error
	// Snapshot returns a copy of the current model that shares no memory with it.
	Snapshot() Snapshot
}

// Snapshot is an immutable export of a model.
type Snapshot interface {
	Kind() string
}

// ModelFactory builds a Model from its params.
type ModelFactory func(params ModelParams) (Model, error)

// State is what a worker hands back to the dispatcher on request.
type State struct {
	WorkerID string   `json:"worker_id"`
	JobsDone int64    `json:"jobs_done"`
	Snapshot Snapshot `json:"snapshot"`
}
