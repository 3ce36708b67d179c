package coordinator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/cuemby/taskmaster/pkg/types"
)

// fakeNodeConn is a scripted NodeConn for admission tests. signer, when
// set, answers Challenge with a real RSA signature over the nonce so
// that onConnected's proof-of-possession check passes; key should then
// be signer's own PublicKeyBytes(). A nil signer makes Challenge fail,
// for tests exercising a node that cannot prove its key.
type fakeNodeConn struct {
	key      []byte
	signer   *security.KeyPair
	cores    int
	cpu      int
	mem      int64
	loginErr error

	mu         sync.Mutex
	closed     bool
	initCalled bool
}

// newFakeNodeConn generates a real RSA identity for the fake node so its
// GetKey/Challenge round trip satisfies the Master's signed-challenge
// admission check (§4.2 step 3).
func newFakeNodeConn(t *testing.T, cores, cpu int, mem int64) *fakeNodeConn {
	t.Helper()
	kp, err := security.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate fake node key pair: %v", err)
	}
	keyBytes, err := kp.PublicKeyBytes()
	if err != nil {
		t.Fatalf("encode fake node public key: %v", err)
	}
	return &fakeNodeConn{key: keyBytes, signer: kp, cores: cores, cpu: cpu, mem: mem}
}

func (f *fakeNodeConn) Login(username, password string) error { return f.loginErr }
func (f *fakeNodeConn) GetKey() ([]byte, error)                { return f.key, nil }
func (f *fakeNodeConn) Challenge(nonce []byte) ([]byte, error) {
	if f.signer == nil {
		return nil, fmt.Errorf("fakeNodeConn: no signer configured for challenge")
	}
	return f.signer.Sign(nonce)
}
func (f *fakeNodeConn) Info() (int, int, int64, error) { return f.cores, f.cpu, f.mem, nil }
func (f *fakeNodeConn) Init(host string, port int, key []byte) error {
	f.mu.Lock()
	f.initCalled = true
	f.mu.Unlock()
	return nil
}
func (f *fakeNodeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// fakeDialer resolves (host, port) to a pre-scripted NodeConn or error.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]NodeConn
	errs  map[string]error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string]NodeConn), errs: make(map[string]error)}
}

func (d *fakeDialer) DialNode(host string, port int) (NodeConn, error) {
	addr := types.NodeKey(host, port)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.errs[addr]; ok {
		return nil, err
	}
	if c, ok := d.conns[addr]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("fakeDialer: no conn scripted for %s", addr)
}

func (d *fakeDialer) setConn(host string, port int, c NodeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[types.NodeKey(host, port)] = c
}

func (d *fakeDialer) setErr(host string, port int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[types.NodeKey(host, port)] = err
}

// runTaskCall records one RunTask invocation observed by a fakeWorkerConn.
type runTaskCall struct {
	taskKey          string
	args             map[string]interface{}
	subtaskKey       string
	workunitKey      string
	availableWorkers int
}

// fakeWorkerConn is a scripted, call-recording WorkerConn.
type fakeWorkerConn struct {
	mu sync.Mutex

	runTaskCalls    []runTaskCall
	stopTaskCalls   int
	returnWorkCalls []struct{ subtaskKey, workunitKey string }
	receiveCalls    []struct {
		results             map[string]interface{}
		subtaskKey, workunitKey string
	}
	statusReply types.WorkerStatus
	progress    int
}

func newFakeWorkerConn() *fakeWorkerConn {
	return &fakeWorkerConn{statusReply: types.WorkerStatusIdle}
}

func (f *fakeWorkerConn) Status() (types.WorkerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusReply, nil
}

func (f *fakeWorkerConn) RunTask(taskKey string, args map[string]interface{}, subtaskKey, workunitKey string, availableWorkers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runTaskCalls = append(f.runTaskCalls, runTaskCall{taskKey, args, subtaskKey, workunitKey, availableWorkers})
	return nil
}

func (f *fakeWorkerConn) StopTask() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTaskCalls++
	return nil
}

func (f *fakeWorkerConn) TaskStatus() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, nil
}

func (f *fakeWorkerConn) ReturnWork(subtaskKey, workunitKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnWorkCalls = append(f.returnWorkCalls, struct{ subtaskKey, workunitKey string }{subtaskKey, workunitKey})
	return nil
}

func (f *fakeWorkerConn) ReceiveResults(results map[string]interface{}, subtaskKey, workunitKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiveCalls = append(f.receiveCalls, struct {
		results                 map[string]interface{}
		subtaskKey, workunitKey string
	}{results, subtaskKey, workunitKey})
	return nil
}

func (f *fakeWorkerConn) Close() error { return nil }

func (f *fakeWorkerConn) runTaskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runTaskCalls)
}

func (f *fakeWorkerConn) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopTaskCalls
}
