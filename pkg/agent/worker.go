package agent

import (
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/taskmaster/pkg/catalog"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/cuemby/taskmaster/pkg/rpc"
	"github.com/cuemby/taskmaster/pkg/types"
	"github.com/rs/zerolog"
)

// sharedWorkerSecret mirrors the Master's placeholder credential
// (coordinator.sharedWorkerSecret); real trust comes from the node's RSA
// pairing, not this value.
const sharedWorkerSecret = "1234"

// Worker simulates a single execution slot on a Node: it dials the
// Master's worker-facing endpoint, authenticates, and then serves
// run_task/stop_task/task_status/return_work/receive_results for that
// one session.
type Worker struct {
	key     string
	catalog catalog.Catalog
	logger  zerolog.Logger

	mu         sync.Mutex
	session    *rpc.Session
	progress   int
	cancel     chan struct{}
	subResults map[string]map[string]interface{} // workunit_key -> results, for the main worker
}

func newWorker(nodeAddr string, index int, cat catalog.Catalog) *Worker {
	host, portStr, _ := net.SplitHostPort(nodeAddr)
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	return &Worker{
		key:        types.WorkerKey(host, port, index),
		catalog:    cat,
		logger:     log.WithComponent("agent.worker"),
		subResults: make(map[string]map[string]interface{}),
	}
}

// Connect dials the Master's worker-facing endpoint, authenticates, and
// serves this worker's RPC until the session closes.
func (w *Worker) Connect(masterHost string, masterPort int) error {
	conn, err := net.Dial("tcp", types.NodeKey(masterHost, masterPort))
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	session, err := rpc.Dial(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}
	w.mu.Lock()
	w.session = session
	w.mu.Unlock()

	var reply rpc.WorkerLoginReply
	if err := session.Call("Master.Login", &rpc.WorkerLoginArgs{WorkerKey: w.key, Secret: sharedWorkerSecret}, &reply); err != nil {
		_ = session.Close()
		return fmt.Errorf("worker login: %w", err)
	}

	return session.Serve("Worker", &workerReceiver{w: w})
}

type workerReceiver struct {
	w *Worker
}

func (r *workerReceiver) Status(args *struct{}, reply *rpc.StatusReply) error {
	reply.Status = string(types.WorkerStatusIdle)
	return nil
}

func (r *workerReceiver) RunTask(args *rpc.RunTaskArgs, reply *rpc.RunTaskReply) error {
	go r.w.run(args.TaskKey, args.Args, args.SubtaskKey, args.WorkunitKey)
	return nil
}

func (r *workerReceiver) StopTask(args *rpc.StopTaskArgs, reply *rpc.StopTaskReply) error {
	r.w.mu.Lock()
	cancel := r.w.cancel
	r.w.mu.Unlock()
	if cancel != nil {
		close(cancel)
	}
	return nil
}

func (r *workerReceiver) TaskStatus(args *rpc.TaskStatusArgs, reply *rpc.TaskStatusReply) error {
	r.w.mu.Lock()
	reply.Progress = r.w.progress
	r.w.mu.Unlock()
	return nil
}

func (r *workerReceiver) ReturnWork(args *rpc.ReturnWorkArgs, reply *rpc.ReturnWorkReply) error {
	r.w.logger.Warn().Str("subtask_key", args.SubtaskKey).Str("workunit_key", args.WorkunitKey).
		Msg("peer lost; unit returned for re-dispatch")
	return nil
}

func (r *workerReceiver) ReceiveResults(args *rpc.ReceiveResultsArgs, reply *rpc.ReceiveResultsReply) error {
	r.w.mu.Lock()
	r.w.subResults[args.WorkunitKey] = args.Results
	r.w.mu.Unlock()
	return nil
}

// run executes one catalog task (or a no-op echo if unknown) and reports
// the outcome to the Master via send_results or task_failed.
func (w *Worker) run(taskKey string, args map[string]interface{}, subtaskKey, workunitKey string) {
	w.mu.Lock()
	w.cancel = make(chan struct{})
	w.progress = 0
	cancel := w.cancel
	session := w.session
	w.mu.Unlock()

	var result map[string]interface{}
	var err error
	if fn, ok := w.catalog.Lookup(taskKey); ok {
		result, err = fn(args)
	} else {
		result = args // unknown task_key: echo args back
	}

	select {
	case <-cancel:
		var reply rpc.WorkerStoppedReply
		_ = session.Call("Master.WorkerStopped", &rpc.WorkerStoppedArgs{WorkerKey: w.key}, &reply)
		return
	default:
	}

	w.mu.Lock()
	w.progress = 100
	w.mu.Unlock()

	if err != nil {
		var reply rpc.TaskFailedReply
		_ = session.Call("Master.TaskFailed", &rpc.TaskFailedArgs{
			WorkerKey: w.key, Results: map[string]interface{}{"error": err.Error()}, WorkunitKey: workunitKey,
		}, &reply)
		return
	}

	var reply rpc.SendResultsReply
	_ = session.Call("Master.SendResults", &rpc.SendResultsArgs{
		WorkerKey: w.key, Results: result, WorkunitKey: workunitKey,
	}, &reply)
}
