// SPDX-License-Identifier: MIT
//
// Adapted from: SagerNet-smux's newMuxConn-constructs-a-connFromConn
// boundary between a raw net.Conn and the multiplexing layer, generalised
// into a registry-backed factory keyed by (type, variant) pairs.

package moler

import (
	"context"

	"github.com/obsrun/moler/registry"
)

// Transport is the adapter a [Connection] is bound to: Open establishes (or
// accepts) the underlying medium, Close tears it down. A transport is
// expected to push every received chunk into its bound Connection via
// DataReceived, from a goroutine it owns.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
}

// TransportFactory builds a Transport already bound to conn (e.g. it has
// called conn.SetSendFunc, but has not yet called Open).
type TransportFactory func(conn *Connection) (Transport, error)

// Attach wires and starts a transport: binds its send primitive into conn
// (already done by the factory, by convention), opens the transport, then
// marks conn open. On a failed Open, conn is left closed.
func Attach(ctx context.Context, conn *Connection, t Transport) error {
	if err := t.Open(ctx); err != nil {
		return err
	}
	conn.Open()
	return nil
}

// Transports is the package-wide registry of transport factories, keyed by
// (ioType, variant). Concrete transports self-register from an init()
// function; see transport/memconn for the in-memory fixture.
var Transports = registry.New[registry.TransportKey, TransportFactory]()

// Runners is the package-wide registry of runner constructors, keyed by a
// short variant name.
var Runners = registry.New[string, Runner]()

func init() {
	Runners.Register("pooled", func() (Runner, error) { return NewPooled(), nil })
	Runners.Register("shared", func() (Runner, error) { return NewShared(), nil })
}
