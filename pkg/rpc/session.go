// Package rpc carries the Master's control traffic over a single
// multiplexed transport. Every logical connection (Master<->Node,
// Master<->Worker, Admin<->Master) is one TCP connection wrapped in a
// github.com/hashicorp/yamux session: each side opens one yamux stream
// per outbound call and also accepts inbound streams to serve the RPCs
// its peer directs at it, so calls flow both directions on one
// connection. Each stream carries exactly one net/rpc call encoded with
// github.com/hashicorp/net-rpc-msgpackrpc.
package rpc

import (
	"fmt"
	"net"
	"net/rpc"

	msgpackrpc "github.com/hashicorp/net-rpc-msgpackrpc/v2"
	"github.com/hashicorp/yamux"
)

// Session is a yamux-multiplexed connection carrying net/rpc calls in
// both directions.
type Session struct {
	ymux *yamux.Session
}

// Dial wraps conn as the client (dialing) side of a yamux session.
func Dial(conn net.Conn) (*Session, error) {
	s, err := yamux.Client(conn, nil)
	if err != nil {
		return nil, fmt.Errorf("yamux client handshake: %w", err)
	}
	return &Session{ymux: s}, nil
}

// Accept wraps conn as the server (listening) side of a yamux session.
func Accept(conn net.Conn) (*Session, error) {
	s, err := yamux.Server(conn, nil)
	if err != nil {
		return nil, fmt.Errorf("yamux server handshake: %w", err)
	}
	return &Session{ymux: s}, nil
}

// Call opens a fresh yamux stream and issues one synchronous net/rpc
// call over it, closing the stream when done.
func (s *Session) Call(method string, args, reply interface{}) error {
	stream, err := s.ymux.Open()
	if err != nil {
		return fmt.Errorf("open rpc stream: %w", err)
	}
	defer stream.Close()

	client := msgpackrpc.NewClient(stream)
	defer client.Close()
	return client.Call(method, args, reply)
}

// Serve registers rcvr's exported methods under name on a fresh net/rpc
// server and accepts inbound streams until the session closes, serving
// one call per stream. Intended to run in its own goroutine; returns
// when the session is closed.
func (s *Session) Serve(name string, rcvr interface{}) error {
	server := rpc.NewServer()
	if err := server.RegisterName(name, rcvr); err != nil {
		return fmt.Errorf("register rpc receiver: %w", err)
	}

	for {
		stream, err := s.ymux.Accept()
		if err != nil {
			return err
		}
		go server.ServeCodec(msgpackrpc.NewCodec(stream))
	}
}

// Close tears down the underlying yamux session and all its streams.
func (s *Session) Close() error {
	return s.ymux.Close()
}

// IsClosed reports whether the underlying session has closed.
func (s *Session) IsClosed() bool {
	return s.ymux.IsClosed()
}
