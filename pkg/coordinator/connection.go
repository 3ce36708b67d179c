package coordinator

import (
	"fmt"
	"time"

	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/hashicorp/go-multierror"
)

// loginUsername/loginPassword are the trivial placeholder credentials of
// §4.1; real trust comes from the RSA handshake in admission.go.
const (
	loginUsername = "master"
	loginPassword = "taskmaster"
)

// maxBackoffExponent caps the reconnect delay at 5*2^6 = 320s. P4 fixes
// the exact sequence [5,10,20,40,80,160,320,320,...]; that testable
// property, not the rounder "capped at ~320s" prose, is authoritative.
const maxBackoffExponent = 6

// reconnectDelay returns the backoff delay for the given attempt count,
// per P4.
func reconnectDelay(attempt int) time.Duration {
	exp := attempt
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return time.Duration(5*(1<<uint(exp))) * time.Second
}

// Connect walks every known node whose handle is null, dials it, and logs
// in (§4.1). Only one Connect pass runs at a time; a concurrent caller
// observes the connecting gate and returns immediately.
func (c *Coordinator) Connect() error {
	c.lock.Lock()
	if c.connecting {
		c.lock.Unlock()
		return nil
	}
	c.connecting = true
	c.lock.Unlock()

	defer func() {
		c.lock.Lock()
		c.connecting = false
		c.lock.Unlock()
	}()

	metrics.ConnectPassesTotal.Inc()

	nodes, err := c.store.ListNodes()
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	var result *multierror.Error
	anyAttempted := false
	for _, node := range nodes {
		c.lock.Lock()
		h, exists := c.nodes[node.ID]
		if exists && h.state != stateDisconnected {
			c.lock.Unlock()
			continue // already has a live handle (I5)
		}
		c.lock.Unlock()

		anyAttempted = true
		if err := c.connectOne(node); err != nil {
			result = multierror.Append(result, fmt.Errorf("node %s: %w", node.ID, err))
		}
	}

	c.lock.Lock()
	if result.ErrorOrNil() != nil {
		c.scheduleReconnectLocked(false)
	} else if anyAttempted {
		c.reconnectAttempt = 0
	}
	c.lock.Unlock()

	return result.ErrorOrNil()
}

// connectOne dials and logs into a single node. On success it hands the
// connection to admission (§4.2). On failure it marks the node
// Disconnected so the next Connect pass retries it.
func (c *Coordinator) connectOne(node *types.Node) error {
	c.lock.Lock()
	c.nodes[node.ID] = &nodeHandle{node: node, state: stateConnecting}
	c.nodeByAddr[node.Key()] = node.ID
	c.lock.Unlock()

	conn, err := c.dialer.DialNode(node.Host, node.Port)
	if err != nil {
		c.markDisconnected(node.ID)
		return fmt.Errorf("dial: %w", err)
	}
	if err := conn.Login(loginUsername, loginPassword); err != nil {
		_ = conn.Close()
		c.markDisconnected(node.ID)
		return fmt.Errorf("login: %w", err)
	}

	c.lock.Lock()
	c.nodes[node.ID].conn = conn
	c.nodes[node.ID].state = stateAuthenticated
	c.lock.Unlock()

	c.onConnected(node, conn)
	return nil
}

// markDisconnected drops the live handle for a node (if any), so I5's
// "at most one live handle" holds and the next Connect pass retries it.
func (c *Coordinator) markDisconnected(nodeID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	h, ok := c.nodes[nodeID]
	if !ok {
		return
	}
	h.conn = nil
	h.state = stateDisconnected
}

// OnConnectionLost handles a transport closing out from under an
// Authenticated or Ready node: any state on transport loss moves to
// Disconnected (§4.1 state machine), and because this is a *new* failure
// of a previously-connected node (not a repeat within an ongoing backoff
// pass), the reconnect timer resets (§5 scenario 6, P5).
func (c *Coordinator) OnConnectionLost(nodeID string) {
	c.markDisconnected(nodeID)

	c.lock.Lock()
	c.scheduleReconnectLocked(true)
	c.lock.Unlock()

	c.publish(&events.Event{Type: events.EventNodeLost, NodeID: nodeID})
}

// ScheduleReconnect is the externally invokable form of the reconnect
// scheduler (§4.1), used by tests and by callers outside the connection
// manager that need to force a rescheduling pass.
func (c *Coordinator) ScheduleReconnect(reset bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.scheduleReconnectLocked(reset)
}

// scheduleReconnectLocked arms the single global reconnect timer (I5).
// reset=true cancels any pending timer first, tolerating one that has
// already fired, and restarts the backoff sequence at attempt 0 (P5).
// Caller must hold lock.
func (c *Coordinator) scheduleReconnectLocked(reset bool) {
	if reset {
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
		}
		c.reconnectAttempt = 0
	}

	delay := reconnectDelay(c.reconnectAttempt)
	c.reconnectAttempt++
	c.reconnectTimer = time.AfterFunc(delay, func() {
		_ = c.Connect()
	})
	metrics.ReconnectAttemptsTotal.WithLabelValues("global").Inc()
}
