package coordinator

import (
	"net"

	"github.com/cuemby/taskmaster/pkg/rpc"
)

// ServeWorkers accepts worker connections on ln, the Master's
// worker-facing endpoint (§4.3, §6). Each connection becomes one yamux
// session; the worker authenticates via Login, which admits it into the
// registry. When the session closes the worker is removed.
func (c *Coordinator) ServeWorkers(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go c.handleWorkerConn(conn)
	}
}

func (c *Coordinator) handleWorkerConn(conn net.Conn) {
	session, err := rpc.Accept(conn)
	if err != nil {
		c.logger.Error().Err(err).Msg("worker yamux handshake failed")
		return
	}
	cb := &MasterCallbacks{Coordinator: c, Session: session}
	if err := session.Serve("Master", cb); err != nil {
		c.logger.Debug().Err(err).Msg("worker session closed")
	}
	if cb.WorkerKey != "" {
		c.RemoveWorker(cb.WorkerKey)
	}
}
