package coordinator

import (
	"fmt"

	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/google/uuid"
)

// QueueTask persists a new TaskInstance (STOPPED by default), appends it
// to the in-memory queue, and advances the queue (§4.4).
func (c *Coordinator) QueueTask(taskKey string, args map[string]interface{}, subtaskKey string) (*types.TaskInstance, error) {
	id, err := c.store.NextTaskInstanceID()
	if err != nil {
		return nil, fmt.Errorf("allocate task instance id: %w", err)
	}
	ti := &types.TaskInstance{
		ID:             id,
		TaskKey:        taskKey,
		SubtaskKey:     subtaskKey,
		Args:           args,
		CompletionType: types.CompletionStopped,
	}
	if err := c.store.CreateTaskInstance(ti); err != nil {
		return nil, fmt.Errorf("create task instance: %w", err)
	}

	c.queueLock.Lock()
	c.queue = append(c.queue, ti)
	c.queueLock.Unlock()

	c.publish(&events.Event{Type: events.EventTaskQueued, TaskID: ti.ID})
	metrics.QueueDepth.Set(float64(c.queueLen()))

	c.AdvanceQueue()
	return ti, nil
}

func (c *Coordinator) queueLen() int {
	c.queueLock.Lock()
	defer c.queueLock.Unlock()
	return len(c.queue)
}

// AdvanceQueue pops and dispatches queue-head instances while idle
// workers are available. It is idempotent and safe to call concurrently
// (§5 Ordering guarantees): each call pops at most the instances it can
// actually dispatch, and leaves the head in place once no idle worker
// remains.
func (c *Coordinator) AdvanceQueue() {
	for {
		c.queueLock.Lock()
		if len(c.queue) == 0 {
			c.queueLock.Unlock()
			return
		}
		head := c.queue[0]
		c.queueLock.Unlock()

		dispatched := c.RunTask(head, "", "")
		if !dispatched {
			return
		}

		c.queueLock.Lock()
		if len(c.queue) > 0 && c.queue[0].ID == head.ID {
			c.queue = c.queue[1:]
		}
		c.queueLock.Unlock()
		metrics.QueueDepth.Set(float64(c.queueLen()))
	}
}

// RunTask attempts to dispatch ti to one idle worker, as either a main
// run (subtaskKey == "") or a sub-work-unit. It reports whether dispatch
// succeeded. On success the instance is transitioned to RUNNING (for a
// main dispatch only; a sub-dispatch does not change the owning
// instance's completion_type) and the worker sent run_task.
func (c *Coordinator) RunTask(ti *types.TaskInstance, subtaskKey, workunitKey string) bool {
	timer := metrics.NewTimer()

	c.lock.Lock()
	workerKey := c.popIdleLocked()
	if workerKey == "" {
		c.lock.Unlock()
		return false
	}
	wa := &types.WorkAssignment{
		TaskInstanceID: ti.ID,
		TaskKey:        ti.TaskKey,
		Args:           ti.Args,
		SubtaskKey:     subtaskKey,
		WorkunitKey:    workunitKey,
	}
	c.assignLocked(workerKey, wa)
	availableWorkers := len(c.idle) + 1
	conn, ok := c.wconn[workerKey]
	c.lock.Unlock()

	if subtaskKey == "" {
		now := c.now()
		ti.CompletionType = types.CompletionRunning
		ti.Started = &now
		ti.Worker = workerKey
		if err := c.store.UpdateTaskInstance(ti); err != nil {
			c.logger.Error().Err(err).Int64("task_instance_id", ti.ID).Msg("persist running state failed")
		}
		c.queueLock.Lock()
		c.running[ti.ID] = ti
		c.queueLock.Unlock()
		c.publish(&events.Event{Type: events.EventTaskRunning, TaskID: ti.ID, WorkerKey: workerKey})
	}

	if !ok || conn == nil {
		c.logger.Error().Str("worker_key", workerKey).Msg("assigned worker has no live connection")
		return true
	}
	if err := conn.RunTask(ti.TaskKey, ti.Args, subtaskKey, workunitKey, availableWorkers); err != nil {
		c.logger.Warn().Err(err).Str("worker_key", workerKey).Msg("run_task delivery failed")
	}
	timer.ObserveDuration(metrics.DispatchLatency)
	return true
}

// RequestWorker is the main-worker-initiated sub-work-unit dispatch path
// (§4.4). It does not enqueue: if no worker is free, the caller is told
// so and decides whether to wait or compute locally. Rejected outright if
// the owning task instance is no longer running (cancellation race).
//
// workunitKey identifies this sub-work-unit for the eventual
// receive_results/return_work callback; if the main worker didn't mint
// one itself, the Master mints a fresh one (uuid.New()) rather than
// dispatching under an empty, collision-prone key. The key actually used
// is returned so the caller can track it.
func (c *Coordinator) RequestWorker(taskInstanceID int64, subtaskKey string, args map[string]interface{}, workunitKey string) (bool, string, error) {
	c.queueLock.Lock()
	ti, ok := c.running[taskInstanceID]
	c.queueLock.Unlock()
	if !ok {
		return false, "", fmt.Errorf("task instance %d is not running", taskInstanceID)
	}

	if workunitKey == "" {
		workunitKey = uuid.New().String()
	}

	sub := &types.TaskInstance{ID: ti.ID, TaskKey: ti.TaskKey, Args: args}
	return c.RunTask(sub, subtaskKey, workunitKey), workunitKey, nil
}

// CancelTask marks a TaskInstance CANCELLED, removing it from the queue
// or sending stop_task to every worker assigned to it if running (§4.4).
// Idempotent: cancelling twice, or cancelling an already-terminal
// instance, is a no-op returning false the second time.
func (c *Coordinator) CancelTask(id int64) (bool, error) {
	c.queueLock.Lock()
	var ti *types.TaskInstance
	for i, q := range c.queue {
		if q.ID == id {
			ti = q
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	wasRunning := false
	if ti == nil {
		if r, ok := c.running[id]; ok {
			ti = r
			wasRunning = true
			delete(c.running, id)
		}
	}
	c.queueLock.Unlock()

	if ti == nil {
		return false, nil // already terminal, or unknown
	}

	now := c.now()
	ti.CompletionType = types.CompletionCancelled
	ti.Completed = &now
	if err := c.store.UpdateTaskInstance(ti); err != nil {
		return false, fmt.Errorf("persist cancellation: %w", err)
	}
	metrics.TasksTotal.WithLabelValues(string(types.CompletionCancelled)).Inc()
	c.publish(&events.Event{Type: events.EventTaskCancelled, TaskID: id})

	if wasRunning {
		c.lock.Lock()
		for workerKey, wa := range c.working {
			if wa.TaskInstanceID == id {
				if conn, ok := c.wconn[workerKey]; ok {
					if err := conn.StopTask(); err != nil {
						c.logger.Warn().Err(err).Str("worker_key", workerKey).Msg("stop_task delivery failed")
					}
				}
			}
		}
		c.lock.Unlock()
	}

	metrics.QueueDepth.Set(float64(c.queueLen()))
	return true, nil
}
