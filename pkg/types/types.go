package types

import (
	"strconv"
	"time"
)

// Node is a machine in the cluster running a worker-host process. A Node
// pairs with the Master exactly once, by public key (trust-on-first-use).
type Node struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Cores    int    `json:"cores"`
	CPUSpeed int    `json:"cpu_speed"`
	Memory   int64  `json:"memory"`

	// PubKey is empty until the node completes its first handshake (TOFU).
	PubKey    []byte    `json:"pub_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the node's (host, port) identity string.
func (n *Node) Key() string {
	return NodeKey(n.Host, n.Port)
}

// NodeKey builds the canonical (host, port) identity string for a node.
func NodeKey(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// Paired reports whether the node has completed its first handshake.
func (n *Node) Paired() bool {
	return len(n.PubKey) > 0
}

// WorkerKey builds the identity of worker index i on the given node,
// host:port:index.
func WorkerKey(host string, port, index int) string {
	return NodeKey(host, port) + ":" + strconv.Itoa(index)
}

// CompletionType is the terminal tag on a TaskInstance.
type CompletionType string

const (
	CompletionStopped   CompletionType = "STOPPED"
	CompletionRunning   CompletionType = "RUNNING"
	CompletionComplete  CompletionType = "COMPLETE"
	CompletionCancelled CompletionType = "CANCELLED"
	CompletionFailed    CompletionType = "FAILED"
)

// Terminal reports whether the completion type is a terminal state.
func (c CompletionType) Terminal() bool {
	switch c {
	case CompletionComplete, CompletionCancelled, CompletionFailed:
		return true
	default:
		return false
	}
}

// TaskInstance is a persisted record of a single queued or running task.
// Once terminal (COMPLETE, CANCELLED, or FAILED) it is immutable.
type TaskInstance struct {
	ID             int64                  `json:"id"`
	TaskKey        string                 `json:"task_key"`
	SubtaskKey     string                 `json:"subtask_key,omitempty"`
	Args           map[string]interface{} `json:"args"`
	Worker         string                 `json:"worker,omitempty"`
	CompletionType CompletionType         `json:"completion_type"`
	Started        *time.Time             `json:"started,omitempty"`
	Completed      *time.Time             `json:"completed,omitempty"`
}

// IsMain reports whether this instance describes a top-level task rather
// than a sub-work-unit.
func (t *TaskInstance) IsMain() bool {
	return t.SubtaskKey == ""
}

// WorkAssignment is the in-memory tuple bound to a working worker. It is
// present iff the worker is in the working map. A main assignment has
// SubtaskKey == "". A sub-assignment is owned by the main worker of the
// same TaskInstanceID.
type WorkAssignment struct {
	TaskInstanceID int64
	TaskKey        string
	Args           map[string]interface{}
	SubtaskKey     string
	WorkunitKey    string
}

// IsMain reports whether this is a main (non-sub) assignment.
func (w *WorkAssignment) IsMain() bool {
	return w.SubtaskKey == ""
}

// WorkerStatus is the status a worker reports of itself at admission time.
type WorkerStatus string

const (
	WorkerStatusWorking  WorkerStatus = "WORKING"
	WorkerStatusFinished WorkerStatus = "FINISHED"
	WorkerStatusIdle     WorkerStatus = "IDLE"
)

// TaskStatus is the aggregated view returned by TaskStatuses.
type TaskStatus struct {
	S CompletionType `json:"s"`
	T int64          `json:"t,omitempty"` // started, unix seconds
	P int            `json:"p,omitempty"` // last known progress, or -1
}
