package storage

import (
	"testing"
	"time"

	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNodeCRUD(t *testing.T) {
	store := newTestStore(t)

	node := &types.Node{ID: "node-1", Host: "10.0.0.1", Port: 9990, Cores: 4, CreatedAt: time.Now()}
	require.NoError(t, store.CreateNode(node))

	got, err := store.GetNode("node-1")
	require.NoError(t, err)
	assert.Equal(t, node.Host, got.Host)
	assert.Equal(t, node.Cores, got.Cores)

	node.Cores = 8
	require.NoError(t, store.UpdateNode(node))
	got, err = store.GetNode("node-1")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Cores)

	nodes, err := store.ListNodes()
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	require.NoError(t, store.DeleteNode("node-1"))
	_, err = store.GetNode("node-1")
	assert.Error(t, err)
}

func TestTaskInstanceCRUD(t *testing.T) {
	store := newTestStore(t)

	id, err := store.NextTaskInstanceID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	task := &types.TaskInstance{
		ID:             id,
		TaskKey:        "T",
		Args:           map[string]interface{}{"x": 1.0},
		CompletionType: types.CompletionStopped,
	}
	require.NoError(t, store.CreateTaskInstance(task))

	got, err := store.GetTaskInstance(id)
	require.NoError(t, err)
	assert.Equal(t, "T", got.TaskKey)
	assert.Equal(t, types.CompletionStopped, got.CompletionType)

	now := time.Now()
	task.CompletionType = types.CompletionRunning
	task.Started = &now
	require.NoError(t, store.UpdateTaskInstance(task))

	got, err = store.GetTaskInstance(id)
	require.NoError(t, err)
	assert.Equal(t, types.CompletionRunning, got.CompletionType)
	require.NotNil(t, got.Started)
}

func TestNextTaskInstanceIDMonotonic(t *testing.T) {
	store := newTestStore(t)

	ids := make([]int64, 5)
	for i := range ids {
		id, err := store.NextTaskInstanceID()
		require.NoError(t, err)
		ids[i] = id
	}
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i])
	}
}

func TestMasterKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetMasterKey()
	assert.Error(t, err)

	require.NoError(t, store.SaveMasterKey([]byte("encrypted-key-material")))
	data, err := store.GetMasterKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted-key-material"), data)
}
