// SPDX-License-Identifier: MIT
//
// Adapted from: SagerNet-smux session.go. The teacher multiplexes one
// socket into many streams with a die channel, a mutex-guarded map, and a
// dedicated sendLoop/shaperLoop pair so writers never race the wire. This
// file keeps that shape — one mutex-guarded set, one die-once shutdown,
// vectorised writes for the common "payload + newline" case — and replaces
// "streams keyed by id" with "subscribers keyed by (owner, handler)".

package moler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sagernet/sing/common/bufio"

	"github.com/obsrun/moler/errclass"
	"github.com/obsrun/moler/internal/ids"
	"github.com/obsrun/moler/internal/mlog"
)

// SendFunc writes encoded bytes to the underlying transport. Connection does
// not serialise calls to it: Send and SendLine invoke it without holding any
// lock, so concurrent Send/SendLine calls reach SendFunc concurrently.
type SendFunc func(data []byte) (int, error)

// Connection is the dispatching layer between a transport and the set of
// observers bound to it. It decodes received bytes into strings, fans them
// out to every subscriber in arrival order, and encodes outgoing sends. It
// does not serialise concurrent sends; see [SendFunc].
type Connection struct {
	Name   string
	SpanID string

	encode func(string) []byte
	decode func([]byte) (string, error)

	mu      sync.Mutex
	isOpen  bool
	newline string
	send    SendFunc
	rawW    io.Writer // optional: enables vectorised sendLine writes

	subsMu   sync.Mutex
	subs     []*subscriberEntry
	subIndex map[subscriberKey]*subscriberEntry

	closeOnce    sync.Once
	closeHandled bool

	logger *slog.Logger

	// PropagateDecodeErrors, if true, surfaces decode failures to callers
	// of DataReceived instead of only logging and dropping them.
	PropagateDecodeErrors bool
}

// NewConnection creates a named connection. It starts closed: call Open
// once a transport is attached, since some adapters construct their
// connection open and others closed.
func NewConnection(name string, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = mlog.Discard()
	}
	return &Connection{
		Name:     name,
		SpanID:   ids.NewSpanID(),
		encode:   func(s string) []byte { return []byte(s) },
		decode:   func(b []byte) (string, error) { return string(b), nil },
		newline:  "\n",
		subIndex: make(map[subscriberKey]*subscriberEntry),
		logger:   mlog.New(logger.Handler(), name),
	}
}

// SetCodec overrides the string<->bytes codec used by Send/SendLine and
// DataReceived. The default is a UTF-8 passthrough.
func (c *Connection) SetCodec(encode func(string) []byte, decode func([]byte) (string, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encode, c.decode = encode, decode
}

// SetSendFunc wires the primitive used to actually write bytes to the
// transport. rawWriter is optional; when non-nil and it exposes a
// vectorised-write fast path, SendLine avoids concatenating the payload and
// the newline into one allocation.
func (c *Connection) SetSendFunc(send SendFunc, rawWriter io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send, c.rawW = send, rawWriter
}

// Newline returns the sequence appended by SendLine.
func (c *Connection) Newline() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newline
}

// SetNewline changes the sequence SendLine appends. Setting it to its
// current value is a no-op observable neither in logs nor on the wire.
func (c *Connection) SetNewline(nl string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newline == nl {
		return
	}
	c.newline = nl
}

// Open marks the connection as accepting data. Safe to call more than once.
func (c *Connection) Open() {
	c.mu.Lock()
	c.isOpen = true
	c.mu.Unlock()
	c.logger.Info("connectionOpened")
}

// IsOpen reports whether the connection currently accepts data and sends.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// Send encodes data and writes it through the transport's send primitive.
// On a closed connection this is a documented no-op. When encrypt is true,
// the log record replaces data with stars of equal length; the real bytes
// are still sent unchanged.
func (c *Connection) Send(data string, encrypt bool) error {
	c.mu.Lock()
	open, send := c.isOpen, c.send
	c.mu.Unlock()
	if !open || send == nil {
		return nil
	}
	logged := data
	if encrypt {
		logged = stars(len(data))
	}
	c.logger.Debug("send", append(mlog.WithDirection(mlog.DirSent), slog.String("data", logged))...)
	_, err := send(c.encode(data))
	if err != nil {
		c.logger.Debug("sendFailed", slog.String("errClass", errclass.New(err)), slog.Any("err", err))
	}
	return err
}

// SendLine sends data followed by the connection's current newline
// sequence, encoded as a single logical write.
func (c *Connection) SendLine(data string) error {
	c.mu.Lock()
	open, send, nl, rawW := c.isOpen, c.send, c.newline, c.rawW
	c.mu.Unlock()
	if !open || send == nil {
		return nil
	}
	payload := c.encode(data)
	tail := c.encode(nl)

	c.logger.Debug("sendLine", append(mlog.WithDirection(mlog.DirSent), slog.String("data", data))...)

	if rawW != nil {
		if vw, ok := bufio.CreateVectorisedWriter(rawW); ok {
			_, err := bufio.WriteVectorised(vw, [][]byte{payload, tail})
			return err
		}
	}
	_, err := send(append(payload, tail...))
	return err
}

// DataReceived is the transport's entry point: decode the chunk and hand it
// to every subscriber, in subscription order, in the order chunks arrive.
// Dropped silently when the connection is closed.
func (c *Connection) DataReceived(raw []byte, recvTime time.Time) error {
	c.mu.Lock()
	open, decode, propagate := c.isOpen, c.decode, c.PropagateDecodeErrors
	c.mu.Unlock()
	if !open {
		return nil
	}
	text, err := decode(raw)
	if err != nil {
		c.logger.Debug("decodeFailed", slog.Any("err", err))
		if propagate {
			return err
		}
		return nil
	}
	c.logger.Log(context.Background(), mlog.LevelRawData, "dataReceived",
		append(mlog.WithDirection(mlog.DirReceived), slog.String("data", text))...)

	c.subsMu.Lock()
	snapshot := make([]*subscriberEntry, len(c.subs))
	copy(snapshot, c.subs)
	c.subsMu.Unlock()

	for _, entry := range snapshot {
		entry.queue.push(dataChunk{data: text, recvTime: recvTime})
	}
	return nil
}

// Subscribe registers dataHandler/closeHandler for delivery. owner
// identifies the registering object (usually the observer itself) and must
// be comparable; calling Subscribe twice with the same (owner, dataHandler)
// pair is idempotent.
func (c *Connection) Subscribe(owner any, dataHandler DataHandler, closeHandler CloseHandler) {
	key := keyFor(owner, dataHandler)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if _, exists := c.subIndex[key]; exists {
		return
	}
	entry := newSubscriberEntry(key, dataHandler, closeHandler)
	c.subIndex[key] = entry
	c.subs = append(c.subs, entry)
}

// Unsubscribe removes the matching entry. Unsubscribing an unknown handler
// is a logged warning, not an error. Safe to call from within a data
// handler: no chunk received strictly after this call returns is delivered
// to it, though chunks already queued before the call may still run.
func (c *Connection) Unsubscribe(owner any, dataHandler DataHandler) {
	key := keyFor(owner, dataHandler)

	c.subsMu.Lock()
	entry, exists := c.subIndex[key]
	if !exists {
		c.subsMu.Unlock()
		c.logger.Warn("unsubscribeUnknownHandler")
		return
	}
	delete(c.subIndex, key)
	for i, e := range c.subs {
		if e == entry {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.subsMu.Unlock()

	entry.stop()
}

// Shutdown marks the connection closed and invokes every registered close
// handler exactly once, in registration order. Idempotent.
func (c *Connection) Shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isOpen = false
		c.mu.Unlock()

		c.subsMu.Lock()
		snapshot := make([]*subscriberEntry, len(c.subs))
		copy(snapshot, c.subs)
		c.subsMu.Unlock()

		for _, entry := range snapshot {
			if entry.closeHandler != nil {
				entry.closeHandler()
			}
			entry.stop()
		}
		c.logger.Info("connectionClosed")
	})
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection(%s)", c.Name)
}

func stars(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '*'
	}
	return string(b)
}
