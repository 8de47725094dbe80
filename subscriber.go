// SPDX-License-Identifier: MIT
//
// Adapted from: SagerNet-smux session.go's per-session goroutine loops
// (recvLoop/sendLoop) generalized from "one queue feeding one socket" to
// "one queue per subscriber feeding one parser", plus the pack's
// nghyane-llm-mux/internal/streamutil.IdleWatcher convention of never
// blocking the hot path on a consumer.

package moler

import (
	"reflect"
	"sync"
	"time"
)

// DataHandler receives decoded data as it arrives on a connection.
type DataHandler func(data string, recvTime time.Time)

// CloseHandler is invoked once when the connection it is subscribed to shuts down.
type CloseHandler func()

// subscriberKey is the uniqueness key for a subscription: the identity of
// the owning object (if any) plus the identity of the handler function, so
// the same bound method registered twice counts as one subscription. Go has
// no weak references or bound-method identity, so owner is whatever the
// caller supplies (typically the observer itself) and must be comparable.
type subscriberKey struct {
	owner  any
	fnAddr uintptr
}

func keyFor(owner any, fn DataHandler) subscriberKey {
	return subscriberKey{owner: owner, fnAddr: reflect.ValueOf(fn).Pointer()}
}

// dataChunk is one decoded delivery unit queued for a subscriber.
type dataChunk struct {
	data     string
	recvTime time.Time
}

// subscriberQueue is an unbounded FIFO with a blocking consumer, so the
// connection's delivery loop (dataReceived) never blocks on a slow parser:
// it only ever appends and signals.
type subscriberQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []dataChunk
	closed bool
}

func newSubscriberQueue() *subscriberQueue {
	q := &subscriberQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *subscriberQueue) push(c dataChunk) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, c)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is closed and drained.
func (q *subscriberQueue) pop() (dataChunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return dataChunk{}, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

func (q *subscriberQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// subscriberEntry pairs a data/close handler with the private queue and
// consumer goroutine that serialises delivery to it.
type subscriberEntry struct {
	key          subscriberKey
	dataHandler  DataHandler
	closeHandler CloseHandler
	queue        *subscriberQueue
	stopOnce     sync.Once
}

func newSubscriberEntry(key subscriberKey, dh DataHandler, ch CloseHandler) *subscriberEntry {
	e := &subscriberEntry{
		key:          key,
		dataHandler:  dh,
		closeHandler: ch,
		queue:        newSubscriberQueue(),
	}
	go e.consume()
	return e
}

func (e *subscriberEntry) consume() {
	for {
		chunk, ok := e.queue.pop()
		if !ok {
			return
		}
		e.dataHandler(chunk.data, chunk.recvTime)
	}
}

func (e *subscriberEntry) stop() {
	e.stopOnce.Do(func() {
		e.queue.closeQueue()
	})
}
