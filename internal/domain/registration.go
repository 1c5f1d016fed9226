package domain

import "time"

// WorkerRegistryPrefix is the etcd prefix under which worker processes announce themselves.
const WorkerRegistryPrefix = "/lsi/workers/"

// WorkerRegistration is the value a worker publishes under its registry key.
type WorkerRegistration struct {
	Addr         string    `json:"addr"`
	RegisteredAt time.Time `json:"registered_at"`
}

// WorkerEndpoint is a discovered worker process.
type WorkerEndpoint struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}
