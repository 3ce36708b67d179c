package coordinator

import (
	"time"

	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/types"
)

const statusRefreshInterval = 3 * time.Second

// TaskStatuses snapshots queue and running state on demand (§4.6). It
// triggers at most one progress refresh per statusRefreshInterval (P8:
// never returns a terminal instance, since queue/running hold only
// non-terminal instances, I3).
func (c *Coordinator) TaskStatuses() map[int64]types.TaskStatus {
	c.FetchTaskStatus()

	out := make(map[int64]types.TaskStatus)

	type runningEntry struct {
		id      int64
		started *time.Time
	}

	c.queueLock.Lock()
	for _, ti := range c.queue {
		out[ti.ID] = types.TaskStatus{S: types.CompletionStopped}
	}
	running := make([]runningEntry, 0, len(c.running))
	for id, ti := range c.running {
		running = append(running, runningEntry{id: id, started: ti.Started})
	}
	c.queueLock.Unlock()

	// lock is acquired only after queueLock has been released, preserving
	// the lock -> queueLock acquisition order (§5): never the reverse.
	c.lock.Lock()
	for _, r := range running {
		st := types.TaskStatus{S: types.CompletionRunning, P: -1}
		if r.started != nil {
			st.T = r.started.Unix()
		}
		if p, ok := c.progress[r.id]; ok {
			st.P = p
		}
		out[r.id] = st
	}
	c.lock.Unlock()

	return out
}

// FetchTaskStatus polls every main working assignment for task_status,
// rate-limited to one refresh per statusRefreshInterval via a monotonic
// deadline (§9 design note: the source's rate limiter was effectively
// disabled by a typo; this reimplementation honors the cap). Replies may
// arrive after this call returns; stale progress is accepted.
func (c *Coordinator) FetchTaskStatus() {
	c.lock.Lock()
	now := c.now()
	if now.Before(c.lastStatusPoll.Add(statusRefreshInterval)) {
		c.lock.Unlock()
		return
	}
	c.lastStatusPoll = now

	type target struct {
		taskID int64
		conn   WorkerConn
	}
	var targets []target
	for workerKey, wa := range c.working {
		if !wa.IsMain() {
			continue
		}
		if conn, ok := c.wconn[workerKey]; ok {
			targets = append(targets, target{taskID: wa.TaskInstanceID, conn: conn})
		}
	}
	c.lock.Unlock()

	metrics.StatusPollsTotal.Inc()

	for _, t := range targets {
		go func(t target) {
			p, err := t.conn.TaskStatus()
			if err != nil {
				// Status poll failure (§7): progress stays at its last value.
				return
			}
			c.lock.Lock()
			c.progress[t.taskID] = p
			c.lock.Unlock()
		}(t)
	}
}
