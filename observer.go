// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/connection_observer.py (state machine:
// created/running/done, result/exception exclusivity, start/await_done
// delegating to a runner) generalized to Go's embedding idiom: concrete
// commands/events embed [Base] the way SagerNet-smux's public Stream
// embeds a private stream to promote its methods, and Base keeps a
// reference to the outer value ("self") so the runner can dispatch the
// polymorphic hooks (DataReceived/OnTimeout/OnInactivity) on the concrete
// type instead of on the embedded base.

package moler

import (
	"sync"
	"time"

	"github.com/obsrun/moler/internal/ids"
)

// lifecycleState is the created -> running -> done progression an observer
// moves through exactly once.
type lifecycleState int

const (
	stateCreated lifecycleState = iota
	stateRunning
	stateDone
)

// DoneKind distinguishes the terminal sub-states of a done observer.
type DoneKind int

const (
	NotDone DoneKind = iota
	Resolved
	Failed
	Cancelled
	TimedOut
)

func (k DoneKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed-out"
	default:
		return "not-done"
	}
}

// Observer is the polymorphic surface a concrete command or event
// implements. DataReceived is where parsing happens; OnTimeout,
// OnInactivity and ConnectionClosedHandler are overridable hooks. On [Base]
// OnTimeout and OnInactivity default to no-ops, and ConnectionClosedHandler
// fails a not-yet-done observer with [ConnectionClosed]. Base returns the shared state machine so the
// runner and connection can drive it without knowing the concrete type.
type Observer interface {
	DataReceived(data string, recvTime time.Time)
	OnTimeout()
	OnInactivity()
	ConnectionClosedHandler()
	Base() *Base
}

// Base implements the connection-observer state machine. Concrete observers
// embed Base by value and are constructed through [NewBase], which records
// the embedding value itself ("self") so hook dispatch reaches overrides.
type Base struct {
	name       string
	connection *Connection
	runner     Runner
	self       Observer
	spanID     string

	mu                 sync.Mutex
	timeout            time.Duration
	terminatingTimeout time.Duration
	inactivityTimeout  time.Duration
	startTime          time.Time
	lastFeedTime       time.Time

	state              lifecycleState
	doneKind           DoneKind
	result             any
	err                error
	inTerminating      bool
	wasOnTimeoutCalled bool
	subscribed         bool

	doneCh chan struct{}
	handle Handle
}

// NewBase wires a new observer's shared state. self must be the concrete
// observer value that embeds this Base (commonly "&ThisType{}" right after
// allocation, before any other field is touched).
func NewBase(name string, connection *Connection, runner Runner, self Observer) Base {
	return Base{
		name:       name,
		connection: connection,
		runner:     runner,
		self:       self,
		spanID:     ids.NewSpanID(),
		doneCh:     make(chan struct{}),
	}
}

// Base implements [Observer] for types that embed Base directly without
// wrapping it further.
func (b *Base) Base() *Base { return b }

// Name returns the observer's human-readable name, used in logs and errors.
func (b *Base) Name() string { return b.name }

// Connection returns the bound connection.
func (b *Base) Connection() *Connection { return b.connection }

// Timeout returns the observer's current lifetime budget.
func (b *Base) Timeout() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timeout
}

// SetTimeout changes the lifetime budget; the runner re-reads it every tick,
// so changing it while running takes effect immediately.
func (b *Base) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}

// SetTerminatingTimeout sets the grace window after a timeout during which
// a late result may still resolve the observer successfully.
func (b *Base) SetTerminatingTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminatingTimeout = d
}

// SetInactivityTimeout sets the maximum idle gap between incoming data
// chunks before OnInactivity fires. Zero disables inactivity detection.
func (b *Base) SetInactivityTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inactivityTimeout = d
}

// Start begins background execution: it stamps startTime, optionally
// overrides the timeout, and submits self to the runner. Starting an
// already-started or already-done observer fails with [WrongUsage].
func (b *Base) Start(timeout ...time.Duration) (Observer, error) {
	b.mu.Lock()
	if b.state != stateCreated {
		b.mu.Unlock()
		return nil, &WrongUsage{Observer: b.name, Reason: "already started or done"}
	}
	if len(timeout) > 0 {
		b.timeout = timeout[0]
	}
	now := time.Now()
	b.startTime = now
	b.lastFeedTime = now
	b.state = stateRunning
	b.mu.Unlock()

	handle, err := b.runner.Submit(b.self)
	if err != nil {
		b.mu.Lock()
		b.state = stateCreated
		b.mu.Unlock()
		return nil, err
	}
	b.mu.Lock()
	b.handle = handle
	b.subscribed = true
	b.mu.Unlock()
	return b.self, nil
}

// Call starts the observer and blocks for its result.
func (b *Base) Call(timeout ...time.Duration) (any, error) {
	if _, err := b.Start(timeout...); err != nil {
		return nil, err
	}
	return b.AwaitDone()
}

// AwaitDone blocks until the observer is done or the supplied timeout
// elapses. On elapse it synthesises a timeout and returns/raises it, same
// as a runner-side timeout would.
func (b *Base) AwaitDone(timeout ...time.Duration) (any, error) {
	b.mu.Lock()
	done := b.state == stateDone
	handle := b.handle
	b.mu.Unlock()
	if done {
		return b.Result()
	}
	var d time.Duration
	if len(timeout) > 0 {
		d = timeout[0]
	}
	return b.runner.WaitFor(b.self, handle, d)
}

// Cancel transitions a running observer to cancelled; done observers are
// unaffected and Cancel returns false.
func (b *Base) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked()
}

func (b *Base) cancelLocked() bool {
	if b.state == stateDone {
		return false
	}
	b.finishLocked(Cancelled, nil, nil)
	return true
}

// Cancelled reports whether the observer ended via cancellation.
func (b *Base) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doneKind == Cancelled
}

// Running reports whether the observer has been started but is not yet done.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateRunning
}

// Done reports whether the observer reached a terminal state.
func (b *Base) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateDone
}

// DoneCh is closed exactly once, when the observer becomes done.
func (b *Base) DoneCh() <-chan struct{} { return b.doneCh }

// DoneKind reports which terminal sub-state the observer reached.
func (b *Base) DoneKind() DoneKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doneKind
}

// SetResult sets the final result. A second call to SetResult or
// SetException on an already-done observer is [ResultAlreadySet].
func (b *Base) SetResult(result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateDone {
		return &ResultAlreadySet{Observer: b.name}
	}
	b.finishLocked(Resolved, result, nil)
	return nil
}

// SetException sets the observer's failure. Like SetResult, a second call
// after done is [ResultAlreadySet]. During the terminating window no
// timeout exception has been stored yet and the observer is still running,
// so a prompt arriving during grace resolves it through SetResult.
func (b *Base) SetException(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateDone {
		return &ResultAlreadySet{Observer: b.name}
	}
	kind := Failed
	if _, ok := err.(*ConnectionObserverTimeout); ok {
		kind = TimedOut
	} else if _, ok := err.(*CommandTimeout); ok {
		kind = TimedOut
	}
	b.finishLocked(kind, nil, err)
	return nil
}

// finishLocked transitions the observer to done. Caller must hold b.mu.
func (b *Base) finishLocked(kind DoneKind, result any, err error) {
	if b.state == stateDone {
		return
	}
	b.state = stateDone
	b.doneKind = kind
	b.result = result
	b.err = err
	close(b.doneCh)
	if b.subscribed && b.connection != nil {
		conn := b.connection
		self := b.self
		feed := b.feedData
		go conn.Unsubscribe(self, feed)
	}
}

// Result retrieves the observer's final value. Reading before done is
// [ResultNotAvailableYet]; reading a cancelled observer is
// [NoResultSinceCancelCalled]; reading a failed observer re-raises its
// exception.
func (b *Base) Result() (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state != stateDone:
		return nil, &ResultNotAvailableYet{Observer: b.name}
	case b.doneKind == Cancelled:
		return nil, &NoResultSinceCancelCalled{Observer: b.name}
	case b.err != nil:
		return nil, b.err
	default:
		return b.result, nil
	}
}

// --- default (no-op) hooks, overridable by embedding types ---

// OnTimeout is called by the runner once, the first time the observer's
// lifetime expires. The default does nothing; commands override it to send
// a break sequence when BreakOnTimeout is set.
func (b *Base) OnTimeout() {}

// OnInactivity is called by the runner whenever inactivityTimeout elapses
// with no new data. The default does nothing.
func (b *Base) OnInactivity() {}

// ConnectionClosedHandler is invoked by the connection on shutdown. The
// default sets a ConnectionClosed exception if the observer is not already
// done.
func (b *Base) ConnectionClosedHandler() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateDone {
		return
	}
	name := ""
	if b.connection != nil {
		name = b.connection.Name
	}
	b.finishLocked(Failed, nil, &ConnectionClosed{Observer: b.name, Connection: name})
}

// --- fields read by the runner's tick loop ---

func (b *Base) startTimeLocked() time.Time { return b.startTime }

// tick is invoked once per runner tick for this observer. now is the
// current time, shuttingDown reports whether the owning runner is tearing
// down. It returns true once the observer is done (either it already was,
// or this tick made it so), checking in order: done -> timeout/terminating
// -> inactivity -> shutdown-cancel.
func (b *Base) tick(now time.Time, shuttingDown bool) bool {
	b.mu.Lock()
	if b.state == stateDone {
		b.mu.Unlock()
		return true
	}

	effTimeout := b.timeout
	if b.inTerminating {
		effTimeout = b.terminatingTimeout
	}
	if effTimeout > 0 && now.Sub(b.startTime) >= effTimeout {
		passed := now.Sub(b.startTime)
		err := b.timeoutErrLocked(passed)

		if b.inTerminating {
			// Terminating grace elapsed without a late success: force end of life.
			b.finishLocked(TimedOut, nil, err)
			b.mu.Unlock()
			return true
		}

		b.inTerminating = true
		already := b.wasOnTimeoutCalled
		b.wasOnTimeoutCalled = true
		b.startTime = now // restart the clock against terminatingTimeout
		term := b.terminatingTimeout
		self := b.self
		b.mu.Unlock()

		if !already {
			self.OnTimeout()
		}

		if term <= 0 {
			b.mu.Lock()
			if b.state != stateDone {
				b.finishLocked(TimedOut, nil, err)
			}
			b.mu.Unlock()
			return true
		}
		// Stay running through the terminating window: a late SetResult from
		// the parser still wins over this pending timeout.
		return false
	}

	if b.inactivityTimeout > 0 && now.Sub(b.lastFeedTime) > b.inactivityTimeout {
		b.lastFeedTime = now
		self := b.self
		b.mu.Unlock()
		self.OnInactivity()
		return false
	}

	b.mu.Unlock()
	if shuttingDown {
		b.Cancel()
		return true
	}
	return false
}

func (b *Base) timeoutErrLocked(passed time.Duration) error {
	base := ConnectionObserverTimeout{
		Observer:   b.name,
		Timeout:    b.timeout,
		PassedTime: passed,
		Kind:       "background_run",
	}
	if b.inTerminating {
		base.Kind = "terminating"
	}
	if b.isCommandLocked() {
		return &CommandTimeout{ConnectionObserverTimeout: base}
	}
	return &base
}

func (b *Base) isCommandLocked() bool {
	_, ok := b.self.(interface{ CommandString() string })
	return ok
}

// feedData is the connection-facing data handler bridging to self.DataReceived,
// and is what gets registered with Connection.Subscribe. It also refreshes
// lastFeedTime so the inactivity timer resets on every chunk.
func (b *Base) feedData(data string, recvTime time.Time) {
	b.mu.Lock()
	b.lastFeedTime = recvTime
	done := b.state == stateDone
	self := b.self
	b.mu.Unlock()
	if done {
		return
	}
	self.DataReceived(data, recvTime)
}
