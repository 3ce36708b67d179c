// Package api is the thin admin façade over a *coordinator.Coordinator:
// queue_task, cancel_task, task_statuses, and the node-pool inspection
// operations a CLI needs, exposed as a second yamux+net/rpc listener
// alongside the Node/Worker control plane in pkg/coordinator.
package api

import (
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/taskmaster/pkg/coordinator"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/cuemby/taskmaster/pkg/rpc"
	"github.com/rs/zerolog"
)

// Server is the admin façade: a fixed-shared-secret yamux+net/rpc
// listener over the coordinator. Authentication is intentionally
// minimal — the gateway's own auth story is out of scope per spec.md
// §1 — this exists so cmd/taskmasterd has something for a CLI to talk
// to.
type Server struct {
	coord    *coordinator.Coordinator
	secret   string
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates an admin façade over coord, requiring secret on
// every connection's first call.
func NewServer(coord *coordinator.Coordinator, secret string) *Server {
	return &Server{
		coord:  coord,
		secret: secret,
		logger: log.WithComponent("api"),
	}
}

// Start listens on addr and serves admin connections until Stop is
// called. Blocks; run it in its own goroutine.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	s.listener = ln
	s.logger.Info().Str("addr", addr).Msg("admin api listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed by Stop
		}
		go s.handleConn(conn)
	}
}

// Stop closes the admin listener. In-flight connections are left to
// drain on their own.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// StartUnixSocket listens on a Unix domain socket at path, serving only
// read-only admin methods: a local CLI gets status visibility without
// needing the shared secret or the ability to mutate cluster state.
func (s *Server) StartUnixSocket(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("admin unix listen: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("read-only admin socket listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		go s.handleReadOnlyConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	session, err := rpc.Accept(conn)
	if err != nil {
		s.logger.Warn().Err(err).Msg("admin session setup failed")
		_ = conn.Close()
		return
	}
	defer session.Close()

	receiver := &adminReceiver{coord: s.coord, secret: s.secret}
	if err := session.Serve("Admin", receiver); err != nil {
		s.logger.Debug().Err(err).Msg("admin session closed")
	}
}

func (s *Server) handleReadOnlyConn(conn net.Conn) {
	session, err := rpc.Accept(conn)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read-only admin session setup failed")
		_ = conn.Close()
		return
	}
	defer session.Close()

	// The receiver starts out authenticated, so requireAuth() passes for
	// the allowed read methods without a Login call.
	receiver := &readOnlyReceiver{adminReceiver: &adminReceiver{coord: s.coord, secret: s.secret, authed: true}}
	if err := session.Serve("Admin", receiver); err != nil {
		s.logger.Debug().Err(err).Msg("read-only admin session closed")
	}
}

// adminReceiver is the net/rpc receiver registered as "Admin" on every
// admin session. Every method but Login is gated by authenticated.
type adminReceiver struct {
	coord  *coordinator.Coordinator
	secret string

	mu     sync.Mutex
	authed bool
}

func (a *adminReceiver) Login(args *rpc.AdminLoginArgs, reply *rpc.AdminLoginReply) error {
	if args.Secret != a.secret {
		return fmt.Errorf("admin: invalid secret")
	}
	a.mu.Lock()
	a.authed = true
	a.mu.Unlock()
	return nil
}

func (a *adminReceiver) requireAuth() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.authed {
		return fmt.Errorf("admin: not authenticated")
	}
	return nil
}

func (a *adminReceiver) QueueTask(args *rpc.QueueTaskArgs, reply *rpc.QueueTaskReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	ti, err := a.coord.QueueTask(args.TaskKey, args.Args, args.SubtaskKey)
	if err != nil {
		return err
	}
	reply.TaskInstanceID = ti.ID
	return nil
}

func (a *adminReceiver) CancelTask(args *rpc.CancelTaskArgs, reply *rpc.CancelTaskReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	cancelled, err := a.coord.CancelTask(args.TaskInstanceID)
	if err != nil {
		return err
	}
	reply.Cancelled = cancelled
	return nil
}

func (a *adminReceiver) TaskStatuses(args *rpc.TaskStatusesArgs, reply *rpc.TaskStatusesReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	statuses := a.coord.TaskStatuses()
	out := make(map[int64]rpc.TaskStatusEntry, len(statuses))
	for id, st := range statuses {
		out[id] = rpc.TaskStatusEntry{
			CompletionType: string(st.S),
			Started:        st.T,
			Progress:       st.P,
		}
	}
	reply.Statuses = out
	return nil
}

func (a *adminReceiver) KnownNodes(args *rpc.KnownNodesArgs, reply *rpc.KnownNodesReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	reply.Addrs = a.coord.KnownNodes()
	return nil
}

func (a *adminReceiver) PromoteNode(args *rpc.PromoteNodeArgs, reply *rpc.PromoteNodeReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	return a.coord.PromoteNode(args.Host, args.Port)
}

func (a *adminReceiver) ForgetNode(args *rpc.ForgetNodeArgs, reply *rpc.ForgetNodeReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	return a.coord.ForgetNode(args.NodeID)
}

func (a *adminReceiver) PoolStats(args *rpc.PoolStatsArgs, reply *rpc.PoolStatsReply) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	idle, working := a.coord.WorkerCounts()
	reply.IdleWorkers = idle
	reply.WorkingWorkers = working
	reply.QueueDepth = a.coord.QueueDepth()
	reply.RunningTasks = a.coord.RunningCount()
	return nil
}
