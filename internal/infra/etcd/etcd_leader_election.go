package etcd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	LeaderElectionKey = "/lsi/leader"
)

type etcdLeaderElectionManager struct {
	client *clientv3.Client
	nodeID string
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
}

// NewEtcdLeaderElectionManager creates a manager that elects a single active master.
func NewEtcdLeaderElectionManager(client *clientv3.Client, nodeID string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: logger.With("component", "leader-election"),
	}
}

// Campaign blocks until this node is the leader or ctx is done. The returned
// channel is closed when the session lease is lost.
func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	session, err := concurrency.NewSession(m.client,
		concurrency.WithTTL(int(m.ttl.Seconds())),
		concurrency.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create election session: %w", err)
	}
	election := concurrency.NewElection(session, LeaderElectionKey)

	m.logger.Info("campaigning for leadership", "node_id", m.nodeID)
	if err := election.Campaign(ctx, m.nodeID); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("campaign failed: %w", err)
	}

	m.mu.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mu.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(1)

	m.logger.Info("became the leader", "node_id", m.nodeID)
	return session.Done(), nil
}

// Resign gives up leadership and releases the session lease.
func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mu.Lock()
	session, election := m.session, m.election
	m.session, m.election = nil, nil
	m.isLeader = false
	m.mu.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(0)

	if election == nil {
		return nil
	}
	m.logger.Info("resigning leadership", "node_id", m.nodeID)
	err := election.Resign(ctx)
	return errors.Join(err, session.Close())
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isLeader
}
