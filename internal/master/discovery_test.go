package master

import (
	"testing"

	"distributed-lsi/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestWorkerDiscoveryApply(t *testing.T) {
	d := NewWorkerDiscovery(nil, discardLogger())

	d.apply(false, []byte(domain.WorkerRegistryPrefix+"node-b"), []byte(`{"addr":"10.0.0.2:50052"}`))
	d.apply(false, []byte(domain.WorkerRegistryPrefix+"node-a"), []byte(`{"addr":"10.0.0.1:50052"}`))
	d.apply(false, []byte(domain.WorkerRegistryPrefix+"node-c"), []byte(`not json`))

	assert.Equal(t, []domain.WorkerEndpoint{
		{NodeID: "node-a", Addr: "10.0.0.1:50052"},
		{NodeID: "node-b", Addr: "10.0.0.2:50052"},
	}, d.GetWorkers())

	// Re-registration updates the address.
	d.apply(false, []byte(domain.WorkerRegistryPrefix+"node-a"), []byte(`{"addr":"10.0.0.9:50052"}`))
	d.apply(true, []byte(domain.WorkerRegistryPrefix+"node-b"), nil)

	assert.Equal(t, []domain.WorkerEndpoint{{NodeID: "node-a", Addr: "10.0.0.9:50052"}}, d.GetWorkers())
}
