// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/event.py (tillOccursTimes,
// occurrences list, per-occurrence callback, pause/resume).

package moler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Occurrence is one detected match recorded by an [Event].
type Occurrence struct {
	Data any
	Time time.Time
}

// EventLike is the capability interface distinguishing events from
// commands.
type EventLike interface {
	Observer
	EventOccurred(datum any)
}

// Event passively watches data for one or more occurrences of something.
// With TillOccursTimes == -1 it never self-completes and is expected to run
// for the life of a session; with N > 0 it resolves after the Nth
// occurrence with the full occurrences list as its result.
type Event struct {
	Base

	self LineHandler // outer concrete type, for OnNewLine overrides

	mu              sync.Mutex
	tillOccursTimes int
	occurrences     []Occurrence
	callback        func(Occurrence)
	callbackLimiter *rate.Limiter
	paused          bool

	lines lineAssembler
}

// ForeverTillOccurs is the conventional TillOccursTimes value meaning
// "never self-complete".
const ForeverTillOccurs = -1

// NewEvent wires an event's shared state. self receives OnNewLine
// callbacks (the default Event.OnNewLine does nothing; concrete events
// typically shadow it to call EventOccurred on a substring/regex match).
// Events get a very long default timeout, since they are meant to run for
// the duration of a test session; callers needing a bound should call
// SetTimeout explicitly.
func NewEvent(name string, conn *Connection, runner Runner, self EventLike, tillOccursTimes int) Event {
	e := Event{
		Base:            NewBase(name, conn, runner, self),
		tillOccursTimes: tillOccursTimes,
	}
	e.SetTimeout(24 * time.Hour)
	if lh, ok := self.(LineHandler); ok {
		e.self = lh
	}
	return e
}

// OnNewLine is the default no-op override point for line-oriented events.
func (e *Event) OnNewLine(line string, isFullLine bool) {}

// DataReceived feeds the line assembler and forwards full lines to
// OnNewLine, when the concrete event wants line-oriented matching. Events
// that match on raw chunks instead (rather than whole lines) should
// override DataReceived directly on their own type.
func (e *Event) DataReceived(data string, recvTime time.Time) {
	for _, line := range e.lines.feed(data) {
		if e.self != nil {
			e.self.OnNewLine(line, true)
		}
	}
}

// EventOccurred records one match, invokes the per-occurrence callback if
// set, and, once TillOccursTimes > 0 occurrences have been seen, resolves
// the event with the full occurrences list.
func (e *Event) EventOccurred(datum any) {
	e.mu.Lock()
	if e.paused {
		e.mu.Unlock()
		return
	}
	occ := Occurrence{Data: datum, Time: time.Now()}
	e.occurrences = append(e.occurrences, occ)
	cb := e.callback
	limiter := e.callbackLimiter
	count := len(e.occurrences)
	target := e.tillOccursTimes
	all := append([]Occurrence(nil), e.occurrences...)
	e.mu.Unlock()

	if cb != nil && (limiter == nil || limiter.Allow()) {
		cb(occ)
	}
	if target > 0 && count >= target {
		_ = e.SetResult(all)
	}
}

// SetCallback installs a function invoked once per occurrence, in addition
// to the normal accumulation into Occurrences.
func (e *Event) SetCallback(cb func(Occurrence)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

// SetMinReportInterval throttles how often the per-occurrence callback
// fires for chatty events (e.g. a counter ticking every millisecond):
// every occurrence is still recorded and counted toward TillOccursTimes,
// but the callback is skipped for occurrences arriving faster than
// interval apart.
func (e *Event) SetMinReportInterval(interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if interval <= 0 {
		e.callbackLimiter = nil
		return
	}
	e.callbackLimiter = rate.NewLimiter(rate.Every(interval), 1)
}

// Occurrences returns a snapshot of the occurrences recorded so far.
func (e *Event) Occurrences() []Occurrence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Occurrence(nil), e.occurrences...)
}

// Pause stops DataReceived/EventOccurred from registering new matches
// until Resume is called.
func (e *Event) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume re-enables matching after Pause.
func (e *Event) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

// Paused reports whether the event is currently paused.
func (e *Event) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}
