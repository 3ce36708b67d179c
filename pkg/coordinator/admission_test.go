package coordinator

import (
	"testing"

	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// §4.2 TOFU: a key already bound to one paired node, presented by a
// second node, marks the second node duplicate and drops its record.
func TestReceiveNodeKey_DuplicateDropsNode(t *testing.T) {
	c, store, _ := newTestCoordinator(t)

	keyA := []byte("node-a-public-key")
	nodeA := &types.Node{ID: "a", Host: "10.0.0.1", Port: 7000, PubKey: keyA}
	require.NoError(t, store.CreateNode(nodeA))

	nodeB := &types.Node{ID: "b", Host: "10.0.0.2", Port: 7000}
	require.NoError(t, store.CreateNode(nodeB))

	duplicate, err := c.ReceiveNodeKey(nodeB, keyA)
	require.NoError(t, err)
	assert.True(t, duplicate)

	_, err = store.GetNode(nodeB.ID)
	assert.Error(t, err)
}

// A fresh, distinct key is accepted and persisted (trust-on-first-use).
func TestReceiveNodeKey_FirstKeyAccepted(t *testing.T) {
	c, store, _ := newTestCoordinator(t)

	node := &types.Node{ID: "a", Host: "10.0.0.1", Port: 7000}
	require.NoError(t, store.CreateNode(node))

	duplicate, err := c.ReceiveNodeKey(node, []byte("fresh-key"))
	require.NoError(t, err)
	assert.False(t, duplicate)

	persisted, err := store.GetNode(node.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-key"), persisted.PubKey)
}

// A paired node presenting a key different from its stored one is
// rejected outright (it is not TOFU's job to re-pair an already-trusted
// identity).
func TestReceiveNodeKey_PairedMismatchErrors(t *testing.T) {
	c, store, _ := newTestCoordinator(t)

	node := &types.Node{ID: "a", Host: "10.0.0.1", Port: 7000, PubKey: []byte("original-key")}
	require.NoError(t, store.CreateNode(node))

	_, err := c.ReceiveNodeKey(node, []byte("different-key"))
	assert.Error(t, err)
}

// §4.2 step 3: a node that presents a key it cannot prove possession of
// (Challenge fails or its signature doesn't verify) is never trusted,
// TOFU acceptance of the key notwithstanding — its record is dropped.
func TestConnectOne_ChallengeFailureDropsNode(t *testing.T) {
	c, store, dialer := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 1}
	require.NoError(t, store.CreateNode(node))

	conn := &fakeNodeConn{key: []byte("not-a-real-pkix-key"), cores: 1, cpu: 1000, mem: 1 << 30}
	dialer.setConn(node.Host, node.Port, conn)

	require.NoError(t, c.Connect())

	_, err := store.GetNode(node.ID)
	assert.Error(t, err, "node should have been dropped after failing the challenge")

	c.lock.Lock()
	_, stillTracked := c.nodes[node.ID]
	c.lock.Unlock()
	assert.False(t, stillTracked)

	assert.True(t, conn.closed)
}

// A node that genuinely holds the private key matching its presented
// public key passes the challenge and is admitted to Ready.
func TestConnectOne_ChallengeSuccessAdmitsNode(t *testing.T) {
	c, store, dialer := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 1}
	require.NoError(t, store.CreateNode(node))

	conn := newFakeNodeConn(t, 1, 1000, 1<<30)
	dialer.setConn(node.Host, node.Port, conn)

	require.NoError(t, c.Connect())

	c.lock.Lock()
	h, ok := c.nodes[node.ID]
	c.lock.Unlock()
	require.True(t, ok)
	assert.Equal(t, stateReady, h.state)
	assert.True(t, conn.initCalled)
}
