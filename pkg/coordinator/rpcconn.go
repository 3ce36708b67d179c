package coordinator

import (
	"fmt"
	"net"

	"github.com/cuemby/taskmaster/pkg/rpc"
	"github.com/cuemby/taskmaster/pkg/types"
)

// rpcNodeConn adapts a pkg/rpc Session to the NodeConn interface. It
// only makes outbound calls; worker callbacks arrive on the workers' own
// connections (see ServeWorkers).
type rpcNodeConn struct {
	session *rpc.Session
}

// TCPNodeDialer opens a yamux session to a node's control endpoint,
// implementing NodeDialer over a real TCP transport.
type TCPNodeDialer struct{}

func (TCPNodeDialer) DialNode(host string, port int) (NodeConn, error) {
	conn, err := net.Dial("tcp", types.NodeKey(host, port))
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", host, port, err)
	}
	session, err := rpc.Dial(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &rpcNodeConn{session: session}, nil
}

func (n *rpcNodeConn) Login(username, password string) error {
	var reply rpc.LoginReply
	return n.session.Call("Node.Login", &rpc.LoginArgs{Username: username, Password: password}, &reply)
}

func (n *rpcNodeConn) GetKey() ([]byte, error) {
	var reply rpc.GetKeyReply
	if err := n.session.Call("Node.GetKey", &struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.Key, nil
}

func (n *rpcNodeConn) Challenge(nonce []byte) ([]byte, error) {
	var reply rpc.ChallengeReply
	if err := n.session.Call("Node.Challenge", &rpc.ChallengeArgs{Nonce: nonce}, &reply); err != nil {
		return nil, err
	}
	return reply.Signature, nil
}

func (n *rpcNodeConn) Info() (cores int, cpuSpeed int, memory int64, err error) {
	var reply rpc.InfoReply
	if err := n.session.Call("Node.Info", &struct{}{}, &reply); err != nil {
		return 0, 0, 0, err
	}
	return reply.Cores, reply.CPUSpeed, reply.Memory, nil
}

func (n *rpcNodeConn) Init(masterHost string, masterPort int, masterKey []byte) error {
	var reply rpc.InitReply
	return n.session.Call("Node.Init", &rpc.InitArgs{MasterHost: masterHost, MasterPort: masterPort, MasterKey: masterKey}, &reply)
}

func (n *rpcNodeConn) Close() error {
	return n.session.Close()
}

// rpcWorkerConn adapts a pkg/rpc Session to the WorkerConn interface.
type rpcWorkerConn struct {
	session *rpc.Session
}

// NewRPCWorkerConn wraps an accepted worker session.
func NewRPCWorkerConn(session *rpc.Session) WorkerConn {
	return &rpcWorkerConn{session: session}
}

func (w *rpcWorkerConn) Status() (types.WorkerStatus, error) {
	var reply rpc.StatusReply
	if err := w.session.Call("Worker.Status", &struct{}{}, &reply); err != nil {
		return "", err
	}
	return types.WorkerStatus(reply.Status), nil
}

func (w *rpcWorkerConn) RunTask(taskKey string, args map[string]interface{}, subtaskKey, workunitKey string, availableWorkers int) error {
	var reply rpc.RunTaskReply
	return w.session.Call("Worker.RunTask", &rpc.RunTaskArgs{
		TaskKey: taskKey, Args: args, SubtaskKey: subtaskKey, WorkunitKey: workunitKey, AvailableWorkers: availableWorkers,
	}, &reply)
}

func (w *rpcWorkerConn) StopTask() error {
	var reply rpc.StopTaskReply
	return w.session.Call("Worker.StopTask", &rpc.StopTaskArgs{}, &reply)
}

func (w *rpcWorkerConn) TaskStatus() (int, error) {
	var reply rpc.TaskStatusReply
	if err := w.session.Call("Worker.TaskStatus", &rpc.TaskStatusArgs{}, &reply); err != nil {
		return 0, err
	}
	return reply.Progress, nil
}

func (w *rpcWorkerConn) ReturnWork(subtaskKey, workunitKey string) error {
	var reply rpc.ReturnWorkReply
	return w.session.Call("Worker.ReturnWork", &rpc.ReturnWorkArgs{SubtaskKey: subtaskKey, WorkunitKey: workunitKey}, &reply)
}

func (w *rpcWorkerConn) ReceiveResults(results map[string]interface{}, subtaskKey, workunitKey string) error {
	var reply rpc.ReceiveResultsReply
	return w.session.Call("Worker.ReceiveResults", &rpc.ReceiveResultsArgs{Results: results, SubtaskKey: subtaskKey, WorkunitKey: workunitKey}, &reply)
}

func (w *rpcWorkerConn) Close() error {
	return w.session.Close()
}

// MasterCallbacks is the receiver registered on a worker's session to
// serve the Worker -> Master callbacks (§6). It is a thin adapter onto
// the Coordinator's own methods. One MasterCallbacks is created per
// accepted worker connection; WorkerKey is populated by Login and read
// by the accept loop on session close to drive RemoveWorker.
type MasterCallbacks struct {
	Coordinator *Coordinator
	Session     *rpc.Session

	WorkerKey string
}

// Login authenticates the worker against the credential the Master
// registered at node admission, fetches its self-reported status, and
// admits it into the worker registry (§4.3).
func (m *MasterCallbacks) Login(args *rpc.WorkerLoginArgs, reply *rpc.WorkerLoginReply) error {
	if !m.Coordinator.Authenticate(args.WorkerKey, args.Secret) {
		return fmt.Errorf("worker %s: authentication rejected", args.WorkerKey)
	}
	conn := NewRPCWorkerConn(m.Session)
	status, err := conn.Status()
	if err != nil {
		return fmt.Errorf("query worker status: %w", err)
	}
	m.WorkerKey = args.WorkerKey
	m.Coordinator.AdmitWorker(args.WorkerKey, conn, status)
	return nil
}

func (m *MasterCallbacks) SendResults(args *rpc.SendResultsArgs, reply *rpc.SendResultsReply) error {
	m.Coordinator.SendResults(args.WorkerKey, args.Results, args.WorkunitKey)
	return nil
}

func (m *MasterCallbacks) TaskFailed(args *rpc.TaskFailedArgs, reply *rpc.TaskFailedReply) error {
	m.Coordinator.TaskFailed(args.WorkerKey, args.Results, args.WorkunitKey)
	return nil
}

func (m *MasterCallbacks) WorkerStopped(args *rpc.WorkerStoppedArgs, reply *rpc.WorkerStoppedReply) error {
	m.Coordinator.WorkerStopped(args.WorkerKey)
	return nil
}

func (m *MasterCallbacks) RequestWorker(args *rpc.RequestWorkerArgs, reply *rpc.RequestWorkerReply) error {
	dispatched, workunitKey, err := m.Coordinator.RequestWorker(args.TaskInstanceID, args.SubtaskKey, args.Args, args.WorkunitKey)
	reply.Dispatched = dispatched
	reply.WorkunitKey = workunitKey
	return err
}
