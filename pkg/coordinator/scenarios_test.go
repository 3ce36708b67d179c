package coordinator

import (
	"testing"

	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1: submit on empty cluster (spec §8).
func TestScenario_SubmitOnEmptyCluster(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 2}
	conns := admitNodeWithWorkers(t, c, node)

	ti, err := c.QueueTask("T", map[string]interface{}{"x": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ti.ID)
	assert.Equal(t, types.CompletionRunning, ti.CompletionType)

	idle, working := c.WorkerCounts()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 1, working)

	// Worker index 0 was added first, so it is the one popped (FIFO).
	require.Equal(t, 1, conns[0].runTaskCount())
	call := conns[0].runTaskCalls[0]
	assert.Equal(t, "T", call.taskKey)
	assert.Equal(t, "", call.subtaskKey)
	assert.Equal(t, 2, call.availableWorkers)
	assert.Equal(t, 0, conns[1].runTaskCount())
}

// Scenario 2: backpressure (spec §8).
func TestScenario_Backpressure(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 1}
	conns := admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)
	b, err := c.QueueTask("B", nil, "")
	require.NoError(t, err)
	cc, err := c.QueueTask("C", nil, "")
	require.NoError(t, err)

	assert.Equal(t, types.CompletionRunning, a.CompletionType)
	assert.Equal(t, types.CompletionStopped, b.CompletionType)
	assert.Equal(t, types.CompletionStopped, cc.CompletionType)
	assert.Equal(t, 2, c.queueLen())

	workerKey := types.WorkerKey(node.Host, node.Port, 0)
	c.SendResults(workerKey, map[string]interface{}{"ok": true}, "")

	c.queueLock.Lock()
	bRunning := c.running[b.ID]
	_, cStillQueued := func() (*types.TaskInstance, bool) {
		for _, q := range c.queue {
			if q.ID == cc.ID {
				return q, true
			}
		}
		return nil, false
	}()
	c.queueLock.Unlock()

	require.NotNil(t, bRunning)
	assert.Equal(t, types.CompletionRunning, bRunning.CompletionType)
	assert.True(t, cStillQueued)
	assert.Equal(t, 2, conns[0].runTaskCount()) // second run_task, for B
}

// Scenario 3: sub-unit dispatch and return-on-worker-loss (spec §8).
func TestScenario_SubUnitDispatchAndReturnOnLoss(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 2}
	conns := admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)

	w1 := types.WorkerKey(node.Host, node.Port, 0)
	dispatched, _, err := c.RequestWorker(a.ID, "s", map[string]interface{}{"i": 7}, "u")
	require.NoError(t, err)
	require.True(t, dispatched)

	w2 := types.WorkerKey(node.Host, node.Port, 1)
	_, working := c.WorkerCounts()
	assert.Equal(t, 2, working)

	// w2's transport drops.
	c.RemoveWorker(w2)

	require.Len(t, conns[0].returnWorkCalls, 1)
	assert.Equal(t, "s", conns[0].returnWorkCalls[0].subtaskKey)
	assert.Equal(t, "u", conns[0].returnWorkCalls[0].workunitKey)

	c.lock.Lock()
	_, stillWorking := c.working[w2]
	c.lock.Unlock()
	assert.False(t, stillWorking)
	_ = w1
}

// Scenario 4: failure cascades stop (spec §8).
func TestScenario_FailureCascadesStop(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 2}
	conns := admitNodeWithWorkers(t, c, node)

	a, err := c.QueueTask("A", nil, "")
	require.NoError(t, err)
	w1 := types.WorkerKey(node.Host, node.Port, 0)
	w2 := types.WorkerKey(node.Host, node.Port, 1)

	dispatched, _, err := c.RequestWorker(a.ID, "s", nil, "u")
	require.NoError(t, err)
	require.True(t, dispatched)

	c.TaskFailed(w2, map[string]interface{}{"error": "boom"}, "u")

	persisted, err := store.GetTaskInstance(a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CompletionFailed, persisted.CompletionType)
	require.NotNil(t, persisted.Completed)

	assert.Equal(t, 1, conns[0].stopCount()) // w1 told to stop

	c.lock.Lock()
	_, w2Working := c.working[w2]
	c.lock.Unlock()
	assert.False(t, w2Working)
	_ = w1
}

// Scenario 5: cancel wins over late result (spec §8, P7).
func TestScenario_CancelWinsOverLateResult(t *testing.T) {
	c, store, _ := newTestCoordinator(t)
	node := &types.Node{ID: "n1", Host: "10.0.0.1", Port: 7000, Cores: 1}
	admitNodeWithWorkers(t, c, node)

	d, err := c.QueueTask("D", nil, "")
	require.NoError(t, err)
	w1 := types.WorkerKey(node.Host, node.Port, 0)

	cancelled, err := c.CancelTask(d.ID)
	require.NoError(t, err)
	require.True(t, cancelled)

	c.SendResults(w1, map[string]interface{}{"ok": true}, "")

	persisted, err := store.GetTaskInstance(d.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CompletionCancelled, persisted.CompletionType)

	idle, working := c.WorkerCounts()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, working)
}

// Scenario 6 (reconnect backoff) is covered in connection_test.go, which
// exercises the P4/P5 sequence directly without real-time waits.
