package usecase

import (
	"context"
	"log/slog"
	"time"

	"distributed-lsi/internal/domain"
)

// MasterService keeps the scheduler running on exactly one master: the one
// holding leadership.
type MasterService struct {
	leaderManager domain.LeaderElectionManager
	scheduler     domain.Scheduler
	nodeID        string
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewMasterService(leaderManager domain.LeaderElectionManager, scheduler domain.Scheduler, nodeID string, retryDelay time.Duration, logger *slog.Logger) *MasterService {
	return &MasterService{
		leaderManager: leaderManager,
		scheduler:     scheduler,
		nodeID:        nodeID,
		retryDelay:    retryDelay,
		logger:        logger.With("component", "master-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership and runs the scheduler while leading. It
// returns when ctx is done.
func (s *MasterService) Start(ctx context.Context) error {
	s.logger.Info("master service starting")

	for {
		if ctx.Err() != nil {
			s.logger.Info("master service shutting down")
			return ctx.Err()
		}

		lost, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("leadership campaign failed", "error", err, "retry_in", s.retryDelay)
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
			}
			continue
		}

		s.logger.Info("leading, starting scheduler")
		s.lead(ctx, lost)

		resignCtx, cancel := context.WithTimeout(context.Background(), s.retryDelay)
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			s.logger.Warn("failed to resign leadership", "error", err)
		}
		cancel()
	}
}

// lead runs the scheduler until leadership is lost or ctx is done.
func (s *MasterService) lead(ctx context.Context, lost <-chan struct{}) {
	schedCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.scheduler.Start(schedCtx)
	}()

	select {
	case <-lost:
		s.logger.Warn("leadership lost, stopping scheduler")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
