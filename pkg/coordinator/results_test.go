package coordinator

import (
	"testing"

	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// §4.5 step 4, P6: a sub-work-unit's send_results is routed to the main
// worker's own connection via receive_results, carrying the same
// subtask/workunit keys, and the sub-worker is released to idle.
func TestSendResults_ForwardsSubResultToMainWorker(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 2}
	conns := admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)

	w2 := types.WorkerKey(node.Host, node.Port, 1)
	dispatched, _, err := c.RequestWorker(a.ID, "s", map[string]interface{}{"i": 7}, "u")
	require.NoError(t, err)
	require.True(t, dispatched)

	subResult := map[string]interface{}{"sum": 42}
	c.SendResults(w2, subResult, "u")

	require.Len(t, conns[0].receiveCalls, 1)
	got := conns[0].receiveCalls[0]
	assert.Equal(t, subResult, got.results)
	assert.Equal(t, "s", got.subtaskKey)
	assert.Equal(t, "u", got.workunitKey)

	// The task instance itself is untouched by a sub-result (only a main
	// send_results completes it).
	persisted, ok := func() (*types.TaskInstance, bool) {
		c.queueLock.Lock()
		defer c.queueLock.Unlock()
		ti, ok := c.running[a.ID]
		return ti, ok
	}()
	require.True(t, ok)
	assert.Equal(t, types.CompletionRunning, persisted.CompletionType)

	// w2 is back in the idle pool after reporting its sub-result.
	idle, _ := c.WorkerCounts()
	assert.Equal(t, 1, idle)
}

// A sub-result for an instance that's no longer running (cancel race,
// §4.5) is discarded: no receive_results call reaches the main worker.
func TestSendResults_SubResultDiscardedAfterCancel(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 2}
	conns := admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)

	w2 := types.WorkerKey(node.Host, node.Port, 1)
	dispatched, _, err := c.RequestWorker(a.ID, "s", nil, "u")
	require.NoError(t, err)
	require.True(t, dispatched)

	_, err = c.CancelTask(a.ID)
	require.NoError(t, err)

	c.SendResults(w2, map[string]interface{}{"sum": 1}, "u")

	assert.Empty(t, conns[0].receiveCalls)
}

// A main worker's send_results completes the task instance (COMPLETE)
// and releases the worker to idle.
func TestSendResults_CompletesMainTask(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 1}
	admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)
	w1 := types.WorkerKey(node.Host, node.Port, 0)

	c.SendResults(w1, map[string]interface{}{"ok": true}, "")

	persisted, err := store.GetTaskInstance(a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CompletionComplete, persisted.CompletionType)
	require.NotNil(t, persisted.Completed)

	idle, working := c.WorkerCounts()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, working)
}
