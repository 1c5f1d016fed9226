// internal/domain/dispatcher.go
package domain

import "context"

// Dispatcher is the worker's view of the central dispatcher.
type Dispatcher interface {
	// GetJob blocks until a job is available for the worker.
	GetJob(ctx context.Context, workerID string) (*Job, error)
	// JobDone reports that the worker finished its outstanding job.
	JobDone(ctx context.Context, workerID string) error
}
