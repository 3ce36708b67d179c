package rpc

// Wire argument/reply structs for every RPC named in the external
// interfaces: Node control, Worker, Worker->Master callbacks, and the
// admin façade. All are msgpack-encoded by net-rpc-msgpackrpc.

// LoginArgs/LoginReply: Master -> Node trivial credential handshake.
type LoginArgs struct {
	Username string
	Password string
}
type LoginReply struct{}

// GetKeyReply carries the node's PKIX-encoded RSA public key.
type GetKeyReply struct {
	Key []byte
}

// ChallengeArgs carries a Master-generated nonce a node must sign with
// its private key, proving possession of the key it presented to
// GetKey (§4.2 step 3, RSA mutual authentication).
type ChallengeArgs struct {
	Nonce []byte
}
type ChallengeReply struct {
	Signature []byte
}

// InfoReply carries a node's resource report.
type InfoReply struct {
	Cores    int
	CPUSpeed int
	Memory   int64
}

// InitArgs tells a node to spawn workers and connect them back.
type InitArgs struct {
	MasterHost string
	MasterPort int
	MasterKey  []byte
}
type InitReply struct{}

// StatusReply carries a worker's self-reported status at connect time.
type StatusReply struct {
	Status string // WORKING | FINISHED | IDLE
}

// RunTaskArgs dispatches a task or sub-work-unit to a worker.
type RunTaskArgs struct {
	TaskKey          string
	Args             map[string]interface{}
	SubtaskKey       string
	WorkunitKey      string
	AvailableWorkers int
}
type RunTaskReply struct{}

type StopTaskArgs struct{}
type StopTaskReply struct{}

type TaskStatusArgs struct{}
type TaskStatusReply struct {
	Progress int
}

// ReturnWorkArgs asks a main worker to re-dispatch a unit whose worker
// was lost.
type ReturnWorkArgs struct {
	SubtaskKey  string
	WorkunitKey string
}
type ReturnWorkReply struct{}

// ReceiveResultsArgs delivers a completed sub-work-unit's results to the
// main worker.
type ReceiveResultsArgs struct {
	Results     map[string]interface{}
	SubtaskKey  string
	WorkunitKey string
}
type ReceiveResultsReply struct{}

// Worker -> Master callbacks.

// WorkerLoginArgs authenticates a worker connection against the
// credential the Master registered for it at node admission (§4.2 step
// 5, §4.3).
type WorkerLoginArgs struct {
	WorkerKey string
	Secret    string
}
type WorkerLoginReply struct{}

type SendResultsArgs struct {
	WorkerKey   string
	Results     map[string]interface{}
	WorkunitKey string
}
type SendResultsReply struct{}

type TaskFailedArgs struct {
	WorkerKey   string
	Results     map[string]interface{}
	WorkunitKey string
}
type TaskFailedReply struct{}

type WorkerStoppedArgs struct {
	WorkerKey string
}
type WorkerStoppedReply struct{}

type RequestWorkerArgs struct {
	WorkerKey      string
	TaskInstanceID int64
	SubtaskKey     string
	Args           map[string]interface{}
	WorkunitKey    string
}
type RequestWorkerReply struct {
	Dispatched bool
	// WorkunitKey is the key actually used to track this sub-work-unit:
	// what the caller supplied, or a Master-minted one if it supplied
	// none.
	WorkunitKey string
}

// Admin façade.

type QueueTaskArgs struct {
	TaskKey    string
	Args       map[string]interface{}
	SubtaskKey string
}
type QueueTaskReply struct {
	TaskInstanceID int64
}

type CancelTaskArgs struct {
	TaskInstanceID int64
}
type CancelTaskReply struct {
	Cancelled bool
}

type TaskStatusesArgs struct{}
type TaskStatusEntry struct {
	CompletionType string
	Started        int64
	Progress       int
}
type TaskStatusesReply struct {
	Statuses map[int64]TaskStatusEntry
}

// AdminLoginArgs authenticates an admin façade connection against the
// gateway's fixed shared secret (out of scope for real auth per spec.md
// §1; present so cmd/taskmasterd has something for a CLI to talk to).
type AdminLoginArgs struct {
	Secret string
}
type AdminLoginReply struct{}

type KnownNodesArgs struct{}
type KnownNodesReply struct {
	Addrs []string
}

type PromoteNodeArgs struct {
	Host string
	Port int
}
type PromoteNodeReply struct{}

type ForgetNodeArgs struct {
	NodeID string
}
type ForgetNodeReply struct{}

type PoolStatsArgs struct{}
type PoolStatsReply struct {
	IdleWorkers    int
	WorkingWorkers int
	QueueDepth     int
	RunningTasks   int
}
