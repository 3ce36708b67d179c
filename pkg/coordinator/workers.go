package coordinator

import (
	"sync"

	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/types"
)

// sharedWorkerSecret is the placeholder credential every worker slot is
// registered with at admission time (§4.2 step 5). It is not a real
// security boundary; trust comes from the node's RSA pairing.
const sharedWorkerSecret = "1234"

// workerAuthenticator is a credential table the Master only ever adds
// to: a worker key remains valid for the Master's lifetime once
// registered (§5, "Shared resources").
type workerAuthenticator struct {
	mu    sync.RWMutex
	creds map[string]string
}

func newWorkerAuthenticator() *workerAuthenticator {
	return &workerAuthenticator{creds: make(map[string]string)}
}

// Register adds a worker credential. Called once per core, before the
// owning node is told to init (§4.2 invariant).
func (a *workerAuthenticator) Register(workerKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds[workerKey] = sharedWorkerSecret
}

// Authenticate reports whether workerKey is a registered credential with
// the given secret.
func (a *workerAuthenticator) Authenticate(workerKey, secret string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	want, ok := a.creds[workerKey]
	return ok && want == secret
}

// RegisterNodeWorkers registers the credential for every core of a newly
// admitted node. Must run before Init is sent to the node.
func (c *Coordinator) RegisterNodeWorkers(node *types.Node) {
	for i := 0; i < node.Cores; i++ {
		c.workerAuth.Register(types.WorkerKey(node.Host, node.Port, i))
	}
}

// Authenticate exposes the worker authenticator to the worker-facing
// listener (MasterCallbacks.Login) that accepts inbound worker connections.
func (c *Coordinator) Authenticate(workerKey, secret string) bool {
	return c.workerAuth.Authenticate(workerKey, secret)
}

// AdmitWorker is called by the worker-facing listener once a worker has
// authenticated and its conn is open. status is the worker's
// self-reported state at connect time (§4.3).
func (c *Coordinator) AdmitWorker(workerKey string, conn WorkerConn, status types.WorkerStatus) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.wconn[workerKey] = conn

	switch status {
	case types.WorkerStatusWorking:
		// Acknowledged gap (§4.3, §9): the assignment this worker was
		// holding before Master restart is not reconstructed. Log and
		// leave the worker out of both idle and working until it next
		// reports idle or its task completes some other way.
		c.logger.Warn().Str("worker_key", workerKey).Msg("worker reconnected reporting WORKING; assignment not recovered")
	case types.WorkerStatusFinished:
		// Acknowledged gap (§4.3, §9): forwarding the pending result to
		// the main worker is not implemented. Treat the slot as idle so
		// it re-enters the pool rather than leaking forever.
		c.logger.Warn().Str("worker_key", workerKey).Msg("worker reconnected reporting FINISHED; result not recovered")
		c.addIdleLocked(workerKey)
	default:
		c.addIdleLocked(workerKey)
	}
}

// addIdleLocked inserts workerKey at the tail of the idle pool. Caller
// must hold lock. Invariant I1: a key present in idle is never also in
// working.
func (c *Coordinator) addIdleLocked(workerKey string) {
	if c.idleSet[workerKey] {
		return
	}
	delete(c.working, workerKey)
	c.idleSet[workerKey] = true
	c.idle = append(c.idle, workerKey)
	c.publish(&events.Event{Type: events.EventWorkerIdle, WorkerKey: workerKey})
}

// popIdleLocked removes and returns the head of the idle pool, or ""
// if empty. Caller must hold lock.
func (c *Coordinator) popIdleLocked() string {
	if len(c.idle) == 0 {
		return ""
	}
	key := c.idle[0]
	c.idle = c.idle[1:]
	delete(c.idleSet, key)
	return key
}

// assignLocked moves workerKey from idle into the working map with the
// given assignment. Caller must hold lock.
func (c *Coordinator) assignLocked(workerKey string, wa *types.WorkAssignment) {
	delete(c.idleSet, workerKey)
	c.working[workerKey] = wa
	ev := events.EventWorkerWorking
	c.publish(&events.Event{Type: ev, WorkerKey: workerKey, TaskID: wa.TaskInstanceID})
}

// RemoveWorker handles a worker transport closing (§4.3 Disconnection).
func (c *Coordinator) RemoveWorker(workerKey string) {
	c.lock.Lock()
	wa, working := c.working[workerKey]
	if !working {
		// Idle (or unknown): drop from idle pool if present, stop.
		if c.idleSet[workerKey] {
			c.removeFromIdleLocked(workerKey)
		}
		delete(c.wconn, workerKey)
		c.lock.Unlock()
		c.publish(&events.Event{Type: events.EventWorkerLost, WorkerKey: workerKey})
		return
	}
	delete(c.working, workerKey)
	delete(c.wconn, workerKey)
	c.lock.Unlock()

	c.publish(&events.Event{Type: events.EventWorkerLost, WorkerKey: workerKey, TaskID: wa.TaskInstanceID})

	if !wa.IsMain() {
		c.returnSubAssignment(wa)
		return
	}

	// Main assignment lost: acknowledged gap (§4.3, §9 decision). Leave
	// the TaskInstance RUNNING with no WorkAssignment; log loudly so the
	// gap is visible rather than silent (I2 exception).
	c.queueLock.Lock()
	ti, ok := c.running[wa.TaskInstanceID]
	c.queueLock.Unlock()
	if ok {
		c.logger.Warn().
			Int64("task_instance_id", ti.ID).
			Str("worker_key", workerKey).
			Msg("main worker lost mid-task; task instance left RUNNING with no assignment")
	}
}

// removeFromIdleLocked deletes workerKey from the idle pool slice and
// set. Caller must hold lock.
func (c *Coordinator) removeFromIdleLocked(workerKey string) {
	delete(c.idleSet, workerKey)
	for i, k := range c.idle {
		if k == workerKey {
			c.idle = append(c.idle[:i], c.idle[i+1:]...)
			return
		}
	}
}

// returnSubAssignment implements the sub-assignment branch of §4.3
// Disconnection: ask the main worker to re-dispatch the unit, or drop
// silently if the main worker is also gone.
func (c *Coordinator) returnSubAssignment(wa *types.WorkAssignment) {
	c.queueLock.Lock()
	ti, ok := c.running[wa.TaskInstanceID]
	c.queueLock.Unlock()
	if !ok || ti.Worker == "" {
		return // task terminal or no main worker on record: drop silently
	}

	c.lock.Lock()
	mainConn, ok := c.wconn[ti.Worker]
	c.lock.Unlock()
	if !ok {
		return // main worker also gone: drop silently
	}
	if err := mainConn.ReturnWork(wa.SubtaskKey, wa.WorkunitKey); err != nil {
		c.logger.Warn().Err(err).Str("worker_key", ti.Worker).Msg("return_work failed; unit leaked")
	}
}

// WorkerCounts reports idle and working pool sizes, for metrics and
// admin pool statistics.
func (c *Coordinator) WorkerCounts() (idle, working int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.idle), len(c.working)
}
