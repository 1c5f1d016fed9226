package domain

import "context"

// Scheduler runs periodic background work until its context is done.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop()
}
