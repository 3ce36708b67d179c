// Package coordinator implements the Master's coordinator kernel: the
// connection manager, node admission, worker registry, queue and
// scheduler, result/failure router, and status aggregator described by
// the system design. Every exported method is safe for concurrent use.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/taskmaster/pkg/catalog"
	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/cuemby/taskmaster/pkg/storage"
	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/rs/zerolog"
)

// connState is a node's position in the connection lifecycle of §4.1.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateAuthenticated
	stateReady
)

// nodeHandle is the connection manager's bookkeeping for one node: the
// live transport handle, non-nil only while the node is at least
// Connecting (I5: at most one live handle per node).
type nodeHandle struct {
	node  *types.Node
	conn  NodeConn
	state connState
}

// Coordinator owns every piece of in-memory state described by the data
// model: the worker registry, the pending queue and running set, the
// connection table, and the status cache. The store, dialer, catalog,
// keypair, and clock are injected so the kernel can be driven by fakes
// in tests without any network or disk I/O.
type Coordinator struct {
	// lock guards the worker registry (idle pool, working map), the
	// connection table, and reconnect attempt counters.
	lock sync.Mutex
	// queueLock guards the pending queue and running set. Acquisition
	// order when both are needed: lock, then queueLock. Never reversed.
	queueLock sync.Mutex

	store   storage.Store
	keys    *security.KeyPair
	dialer  NodeDialer
	catalog catalog.Catalog
	broker  *events.Broker
	logger  zerolog.Logger
	now     func() time.Time

	multicastAll       bool
	known              map[string]bool // known_nodes: host:port not yet promoted
	masterHost         string
	masterPort         int

	nodes      map[string]*nodeHandle // node id -> handle
	nodeByAddr map[string]string      // host:port -> node id

	// Single global reconnect gate and timer (I5): the reconnection
	// timer is unique across the process, not one per node.
	connecting       bool
	reconnectAttempt int
	reconnectTimer   *time.Timer

	workerAuth *workerAuthenticator

	idle    []string                       // idle pool, FIFO insertion order
	idleSet map[string]bool
	working map[string]*types.WorkAssignment
	wconn   map[string]WorkerConn

	queue   []*types.TaskInstance
	running map[int64]*types.TaskInstance

	progress       map[int64]int
	lastStatusPoll time.Time

	closed bool
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithClock overrides the coordinator's notion of "now", for deterministic
// tests of reconnect backoff and status rate limiting.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithMulticastAll sets the discovery promotion policy of §6.
func WithMulticastAll(v bool) Option {
	return func(c *Coordinator) { c.multicastAll = v }
}

// WithMasterAddr sets the (host, port) the Master advertises to a node's
// init call, so its workers know where to dial back (§4.2 step 6).
func WithMasterAddr(host string, port int) Option {
	return func(c *Coordinator) { c.masterHost = host; c.masterPort = port }
}

// New constructs a Coordinator over the given store, dialer, catalog, and
// Master keypair. The broker may be nil, in which case events are dropped.
func New(store storage.Store, dialer NodeDialer, cat catalog.Catalog, keys *security.KeyPair, broker *events.Broker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		keys:       keys,
		dialer:     dialer,
		catalog:    cat,
		broker:     broker,
		logger:     log.WithComponent("coordinator"),
		now:        time.Now,
		known:      make(map[string]bool),
		nodes:      make(map[string]*nodeHandle),
		nodeByAddr: make(map[string]string),
		workerAuth: newWorkerAuthenticator(),
		idleSet:    make(map[string]bool),
		working:    make(map[string]*types.WorkAssignment),
		wconn:      make(map[string]WorkerConn),
		running:    make(map[int64]*types.TaskInstance),
		progress:   make(map[int64]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.loadQueuedAndRunning(); err != nil {
		c.logger.Error().Err(err).Msg("failed to reload task instances from store")
	}
	return c
}

// loadQueuedAndRunning reconstructs the queue and running set from the
// store at startup. Per the non-goal on in-memory worker state, running
// instances are reloaded but no WorkAssignment is recreated: recovery is
// by re-interrogating reconnected workers (§1).
func (c *Coordinator) loadQueuedAndRunning() error {
	instances, err := c.store.ListTaskInstances()
	if err != nil {
		return fmt.Errorf("list task instances: %w", err)
	}
	c.queueLock.Lock()
	defer c.queueLock.Unlock()
	for _, ti := range instances {
		switch ti.CompletionType {
		case types.CompletionStopped:
			c.queue = append(c.queue, ti)
		case types.CompletionRunning:
			c.running[ti.ID] = ti
		}
	}
	return nil
}

func (c *Coordinator) publish(ev *events.Event) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(ev)
}

// Shutdown closes every node connection and worker connection held by the
// coordinator. It does not touch persisted state.
func (c *Coordinator) Shutdown() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	for _, h := range c.nodes {
		if h.conn != nil {
			_ = h.conn.Close()
		}
	}
	for key, wc := range c.wconn {
		_ = wc.Close()
		delete(c.wconn, key)
	}
	return nil
}

// KnownNodes returns the set of discovered (host, port) endpoints not yet
// promoted to the node store, for admin-driven promotion when
// multicast_all is false (§6).
func (c *Coordinator) KnownNodes() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	out := make([]string, 0, len(c.known))
	for addr := range c.known {
		out = append(out, addr)
	}
	return out
}

// ForgetNode is the admin override for trust-on-first-use pairing (§9):
// it deletes a node record and drops its connection, letting the node
// re-pair as if it were new.
func (c *Coordinator) ForgetNode(id string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.dropNodeLocked(id, "admin forget")
}

// dropNodeLocked closes the connection (if any), deletes the store
// record, and removes the handle. Caller must hold lock.
func (c *Coordinator) dropNodeLocked(id, reason string) error {
	if h, ok := c.nodes[id]; ok {
		if h.conn != nil {
			_ = h.conn.Close()
		}
		delete(c.nodes, id)
		if h.node != nil {
			delete(c.nodeByAddr, h.node.Key())
		}
	}
	if err := c.store.DeleteNode(id); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	c.logger.Info().Str("node_id", id).Str("reason", reason).Msg("node dropped")
	return nil
}
