package client

import (
	"fmt"
	"net"

	"github.com/cuemby/taskmaster/pkg/rpc"
)

// Client is a thin wrapper around an admin façade session (pkg/api),
// giving the CLI one call per admin RPC instead of raw session.Call
// everywhere.
type Client struct {
	session *rpc.Session
}

// NewClient dials addr, authenticates with secret, and returns a ready
// Client. secret is the fixed shared credential the admin façade was
// started with.
func NewClient(addr, secret string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial admin façade at %s: %w", addr, err)
	}

	session, err := rpc.Dial(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open admin session: %w", err)
	}

	c := &Client{session: session}
	var reply rpc.AdminLoginReply
	if err := session.Call("Admin.Login", &rpc.AdminLoginArgs{Secret: secret}, &reply); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("admin login: %w", err)
	}
	return c, nil
}

// Close tears down the admin session.
func (c *Client) Close() error {
	return c.session.Close()
}

// QueueTask submits a new top-level task, returning its TaskInstance ID.
func (c *Client) QueueTask(taskKey string, args map[string]interface{}) (int64, error) {
	var reply rpc.QueueTaskReply
	err := c.session.Call("Admin.QueueTask", &rpc.QueueTaskArgs{TaskKey: taskKey, Args: args}, &reply)
	if err != nil {
		return 0, err
	}
	return reply.TaskInstanceID, nil
}

// CancelTask cancels a queued or running task instance. Reports whether
// it was actually cancelled (false if already terminal or unknown).
func (c *Client) CancelTask(taskInstanceID int64) (bool, error) {
	var reply rpc.CancelTaskReply
	err := c.session.Call("Admin.CancelTask", &rpc.CancelTaskArgs{TaskInstanceID: taskInstanceID}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Cancelled, nil
}

// TaskStatus is the CLI-facing view of one task instance's aggregated
// status.
type TaskStatus struct {
	CompletionType string
	Started        int64
	Progress       int
}

// TaskStatuses fetches the current status of every queued and running
// task instance.
func (c *Client) TaskStatuses() (map[int64]TaskStatus, error) {
	var reply rpc.TaskStatusesReply
	if err := c.session.Call("Admin.TaskStatuses", &rpc.TaskStatusesArgs{}, &reply); err != nil {
		return nil, err
	}
	out := make(map[int64]TaskStatus, len(reply.Statuses))
	for id, entry := range reply.Statuses {
		out[id] = TaskStatus{CompletionType: entry.CompletionType, Started: entry.Started, Progress: entry.Progress}
	}
	return out, nil
}

// KnownNodes lists discovered-but-not-yet-promoted (host, port)
// candidates awaiting an admin decision (multicast_all=false policy).
func (c *Client) KnownNodes() ([]string, error) {
	var reply rpc.KnownNodesReply
	if err := c.session.Call("Admin.KnownNodes", &rpc.KnownNodesArgs{}, &reply); err != nil {
		return nil, err
	}
	return reply.Addrs, nil
}

// PromoteNode admits a known (host, port) candidate as a real node the
// coordinator will dial and pair.
func (c *Client) PromoteNode(host string, port int) error {
	var reply rpc.PromoteNodeReply
	return c.session.Call("Admin.PromoteNode", &rpc.PromoteNodeArgs{Host: host, Port: port}, &reply)
}

// ForgetNode drops a node's pairing, the admin override to TOFU's
// duplicate-key rejection (spec.md §9).
func (c *Client) ForgetNode(nodeID string) error {
	var reply rpc.ForgetNodeReply
	return c.session.Call("Admin.ForgetNode", &rpc.ForgetNodeArgs{NodeID: nodeID}, &reply)
}

// PoolStats is the CLI-facing snapshot of worker and queue occupancy.
type PoolStats struct {
	IdleWorkers    int
	WorkingWorkers int
	QueueDepth     int
	RunningTasks   int
}

// PoolStats fetches the current worker/queue occupancy snapshot.
func (c *Client) PoolStats() (PoolStats, error) {
	var reply rpc.PoolStatsReply
	if err := c.session.Call("Admin.PoolStats", &rpc.PoolStatsArgs{}, &reply); err != nil {
		return PoolStats{}, err
	}
	return PoolStats{
		IdleWorkers:    reply.IdleWorkers,
		WorkingWorkers: reply.WorkingWorkers,
		QueueDepth:     reply.QueueDepth,
		RunningTasks:   reply.RunningTasks,
	}, nil
}
