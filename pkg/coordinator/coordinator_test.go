package coordinator

import (
	"testing"

	"github.com/cuemby/taskmaster/pkg/catalog"
	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/cuemby/taskmaster/pkg/storage"
	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) (*Coordinator, storage.Store, *fakeDialer) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	keys, err := security.GenerateKeyPair()
	require.NoError(t, err)

	dialer := newFakeDialer()
	cat := catalog.NewMemoryCatalog()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	c := New(store, dialer, cat, keys, broker, WithMasterAddr("127.0.0.1", 9000))
	return c, store, dialer
}

// admitNodeWithWorkers registers a node's worker credentials and admits
// cores idle fakeWorkerConns, returning them in worker-index order, as
// if the node had completed admission and its workers had connected idle.
func admitNodeWithWorkers(t *testing.T, c *Coordinator, node *types.Node) []*fakeWorkerConn {
	t.Helper()
	c.RegisterNodeWorkers(node)
	conns := make([]*fakeWorkerConn, node.Cores)
	for i := 0; i < node.Cores; i++ {
		conn := newFakeWorkerConn()
		conns[i] = conn
		c.AdmitWorker(types.WorkerKey(node.Host, node.Port, i), conn, types.WorkerStatusIdle)
	}
	return conns
}
