package coordinator

import "github.com/cuemby/taskmaster/pkg/types"

// NodeConn is the Master's view of an open connection to a Node: the
// "Node control RPC" of spec §6 (get_key, info, init). A concrete
// implementation wraps a yamux/msgpackrpc session (pkg/rpc); tests use an
// in-memory fake.
type NodeConn interface {
	// Login performs the trivial credential handshake of §4.1. Real trust
	// is established afterwards by the key exchange, not by this call.
	Login(username, password string) error

	// GetKey asks the node for its RSA public key (PKIX-encoded).
	GetKey() ([]byte, error)

	// Challenge asks the node to sign nonce with the private key matching
	// the public key it presented to GetKey, proving possession (§4.2
	// step 3). The Master verifies the returned signature before trusting
	// the key, whether this is a first pairing or a reconnect.
	Challenge(nonce []byte) (signature []byte, err error)

	// Info asks the node to report its resources.
	Info() (cores int, cpuSpeed int, memory int64, err error)

	// Init tells the node to spawn its workers and connect them back to
	// (masterHost, masterPort), presenting masterKey as the Master's
	// public key.
	Init(masterHost string, masterPort int, masterKey []byte) error

	Close() error
}

// WorkerConn is the Master's view of an open connection to a single
// worker slot: the "Worker RPC" of spec §6.
type WorkerConn interface {
	Status() (types.WorkerStatus, error)
	RunTask(taskKey string, args map[string]interface{}, subtaskKey, workunitKey string, availableWorkers int) error
	StopTask() error
	TaskStatus() (int, error)
	ReturnWork(subtaskKey, workunitKey string) error
	ReceiveResults(results map[string]interface{}, subtaskKey, workunitKey string) error
	Close() error
}

// NodeDialer opens a NodeConn to a discovered (host, port) candidate.
type NodeDialer interface {
	DialNode(host string, port int) (NodeConn, error)
}
