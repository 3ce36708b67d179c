// Package agent is a simulated remote Node + Worker process: the
// out-of-scope "worker/node processes themselves" (spec §1) that a real
// deployment would run on every cluster machine. It exists here so the
// coordinator can be exercised end-to-end over a real transport, and
// gives cmd/taskmaster-agent something to run.
package agent

import (
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/taskmaster/pkg/catalog"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/cuemby/taskmaster/pkg/rpc"
	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/rs/zerolog"
)

// Config configures a Node agent process.
type Config struct {
	Cores    int
	CPUSpeed int
	Memory   int64

	// ListenAddr is where this node accepts the Master's control
	// connection (get_key/info/init).
	ListenAddr string

	Catalog catalog.Catalog
}

// Node simulates a cluster machine: it answers the Master's control RPCs
// and, once told to init, spawns Cores Worker slots that dial the Master
// back.
type Node struct {
	cfg Config
	key *security.KeyPair

	mu      sync.Mutex
	workers []*Worker

	logger zerolog.Logger
}

// NewNode generates a fresh RSA identity and returns an unstarted Node.
func NewNode(cfg Config) (*Node, error) {
	kp, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate node key pair: %w", err)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.NewMemoryCatalog()
	}
	return &Node{cfg: cfg, key: kp, logger: log.WithComponent("agent.node")}, nil
}

// Serve accepts the Master's control connection on cfg.ListenAddr. It
// blocks until the listener errors or is closed.
func (n *Node) Serve() error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.ListenAddr, err)
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go n.handleControlConn(conn)
	}
}

func (n *Node) handleControlConn(conn net.Conn) {
	session, err := rpc.Accept(conn)
	if err != nil {
		n.logger.Error().Err(err).Msg("yamux handshake failed")
		return
	}
	if err := session.Serve("Node", &nodeControlReceiver{node: n}); err != nil {
		n.logger.Debug().Err(err).Msg("node control session closed")
	}
}

// nodeControlReceiver implements the Node control RPC (§6) the Master
// calls against this session.
type nodeControlReceiver struct {
	node *Node
}

func (r *nodeControlReceiver) Login(args *rpc.LoginArgs, reply *rpc.LoginReply) error {
	return nil // trivial credential placeholder, §4.1
}

func (r *nodeControlReceiver) GetKey(args *struct{}, reply *rpc.GetKeyReply) error {
	key, err := r.node.key.PublicKeyBytes()
	if err != nil {
		return err
	}
	reply.Key = key
	return nil
}

// Challenge signs the Master's nonce with this node's private key,
// proving possession of the key GetKey just presented (§4.2 step 3).
func (r *nodeControlReceiver) Challenge(args *rpc.ChallengeArgs, reply *rpc.ChallengeReply) error {
	sig, err := r.node.key.Sign(args.Nonce)
	if err != nil {
		return err
	}
	reply.Signature = sig
	return nil
}

func (r *nodeControlReceiver) Info(args *struct{}, reply *rpc.InfoReply) error {
	reply.Cores = r.node.cfg.Cores
	reply.CPUSpeed = r.node.cfg.CPUSpeed
	reply.Memory = r.node.cfg.Memory
	return nil
}

func (r *nodeControlReceiver) Init(args *rpc.InitArgs, reply *rpc.InitReply) error {
	go r.node.spawnWorkers(args.MasterHost, args.MasterPort)
	return nil
}

// spawnWorkers dials the Master's worker-facing endpoint once per core,
// each under its own host:port:index identity (§3 Worker).
func (n *Node) spawnWorkers(masterHost string, masterPort int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := 0; i < n.cfg.Cores; i++ {
		w := newWorker(n.cfg.ListenAddr, i, n.cfg.Catalog)
		n.workers = append(n.workers, w)
		go func(w *Worker) {
			if err := w.Connect(masterHost, masterPort); err != nil {
				n.logger.Error().Err(err).Str("worker_key", w.key).Msg("worker connect failed")
			}
		}(w)
	}
}
