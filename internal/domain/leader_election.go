package domain

import "context"

// LeaderElectionManager elects the single master that drives the workers.
type LeaderElectionManager interface {
	// Campaign blocks until leadership is acquired. The returned channel is
	// closed when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
