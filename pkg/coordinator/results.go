package coordinator

import (
	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/types"
)

// SendResults implements the send_results callback (§4.5). The worker is
// released to idle before any forwarding happens (P6), so a main worker
// can re-request a peer immediately without starving.
func (c *Coordinator) SendResults(workerKey string, results map[string]interface{}, workunitKey string) {
	c.lock.Lock()
	wa, ok := c.working[workerKey]
	if !ok {
		c.lock.Unlock()
		return // worker lost; fail silently
	}
	delete(c.working, workerKey)
	c.addIdleLocked(workerKey)
	c.lock.Unlock()

	if wa.IsMain() {
		c.completeMain(wa)
	} else {
		c.forwardSubResult(wa, results, workunitKey)
	}

	c.AdvanceQueue()
}

func (c *Coordinator) completeMain(wa *types.WorkAssignment) {
	c.queueLock.Lock()
	ti, ok := c.running[wa.TaskInstanceID]
	if ok {
		delete(c.running, wa.TaskInstanceID)
	}
	c.queueLock.Unlock()
	if !ok {
		return // already removed (e.g. concurrent cancel); tolerate
	}

	now := c.now()
	ti.CompletionType = types.CompletionComplete
	ti.Completed = &now
	if err := c.store.UpdateTaskInstance(ti); err != nil {
		c.logger.Error().Err(err).Int64("task_instance_id", ti.ID).Msg("persist completion failed")
	}
	metrics.TasksTotal.WithLabelValues(string(types.CompletionComplete)).Inc()
	c.publish(&events.Event{Type: events.EventTaskCompleted, TaskID: ti.ID})
}

func (c *Coordinator) forwardSubResult(wa *types.WorkAssignment, results map[string]interface{}, workunitKey string) {
	c.queueLock.Lock()
	ti, running := c.running[wa.TaskInstanceID]
	c.queueLock.Unlock()
	if !running {
		return // instance no longer running: discard (cancel race, §4.5)
	}

	c.lock.Lock()
	mainConn, ok := c.wconn[ti.Worker]
	c.lock.Unlock()
	if !ok {
		return
	}
	if err := mainConn.ReceiveResults(results, wa.SubtaskKey, workunitKey); err != nil {
		c.logger.Warn().Err(err).Str("worker_key", ti.Worker).Msg("receive_results delivery failed")
	}
}

// TaskFailed implements task_failed (§4.5): fatal regardless of main or
// sub, the whole task is FAILED and every sibling worker receives
// stop_task.
func (c *Coordinator) TaskFailed(workerKey string, results map[string]interface{}, workunitKey string) {
	c.lock.Lock()
	wa, ok := c.working[workerKey]
	if !ok {
		c.lock.Unlock()
		return
	}
	delete(c.working, workerKey)
	c.addIdleLocked(workerKey)
	c.lock.Unlock()

	c.queueLock.Lock()
	ti, running := c.running[wa.TaskInstanceID]
	if running {
		delete(c.running, wa.TaskInstanceID)
	}
	c.queueLock.Unlock()

	if running {
		now := c.now()
		ti.CompletionType = types.CompletionFailed
		ti.Completed = &now
		if err := c.store.UpdateTaskInstance(ti); err != nil {
			c.logger.Error().Err(err).Int64("task_instance_id", ti.ID).Msg("persist failure failed")
		}
		metrics.TasksTotal.WithLabelValues(string(types.CompletionFailed)).Inc()
		c.publish(&events.Event{Type: events.EventTaskFailed, TaskID: ti.ID, WorkerKey: workerKey})

		c.lock.Lock()
		for sibling, siblingWA := range c.working {
			if siblingWA.TaskInstanceID == wa.TaskInstanceID {
				if conn, ok := c.wconn[sibling]; ok {
					if err := conn.StopTask(); err != nil {
						c.logger.Warn().Err(err).Str("worker_key", sibling).Msg("stop_task delivery failed")
					}
				}
			}
		}
		c.lock.Unlock()
	}

	c.AdvanceQueue()
}

// WorkerStopped implements the stop_task acknowledgement (§4.5). Only the
// worker returns to idle; the task's terminal state was already set by
// Cancel or Fail.
func (c *Coordinator) WorkerStopped(workerKey string) {
	c.lock.Lock()
	delete(c.working, workerKey)
	c.addIdleLocked(workerKey)
	c.lock.Unlock()

	c.AdvanceQueue()
}
