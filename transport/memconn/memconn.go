// SPDX-License-Identifier: MIT
//
// Adapted from: SagerNet-smux session_test.go's use of net.Pipe to test the
// multiplexer without a real socket, wired here as a first-class
// self-registering [moler.Transport] rather than a test-only helper.

// Package memconn is an in-memory loopback transport fixture, standing in
// for a real TCP/SSH/PTY/FIFO adapter in tests and examples.
package memconn

import (
	"context"
	"net"
	"time"

	"github.com/obsrun/moler"
	"github.com/obsrun/moler/registry"
)

// Pipe is an in-memory [moler.Transport]: bytes the bound Connection sends
// arrive on Peer, and anything written to Peer is fed back into the
// Connection as received data.
type Pipe struct {
	conn  *moler.Connection
	local net.Conn
	peer  net.Conn
}

// New builds a Pipe bound to conn, wiring conn's send primitive to the
// local side of an in-memory net.Pipe. Call Peer to get the far end before
// Open, so nothing written before the read loop starts is lost.
func New(conn *moler.Connection) *Pipe {
	local, peer := net.Pipe()
	conn.SetSendFunc(func(data []byte) (int, error) { return local.Write(data) }, local)
	return &Pipe{conn: conn, local: local, peer: peer}
}

// Peer returns the far end of the loopback pipe.
func (p *Pipe) Peer() net.Conn { return p.peer }

// Open starts the read loop feeding bytes arriving on the local side into
// the bound Connection.
func (p *Pipe) Open(ctx context.Context) error {
	go p.readLoop()
	return nil
}

func (p *Pipe) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := p.local.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			_ = p.conn.DataReceived(chunk, time.Now())
		}
		if err != nil {
			return
		}
	}
}

// Close closes the local side, unblocking any in-flight Read/Write and
// ending the read loop.
func (p *Pipe) Close() error {
	return p.local.Close()
}

func init() {
	moler.Transports.Register(registry.TransportKey{IOType: "mem", Variant: "loopback"},
		func() (moler.TransportFactory, error) {
			return func(conn *moler.Connection) (moler.Transport, error) {
				return New(conn), nil
			}, nil
		})
}
