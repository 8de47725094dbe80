// SPDX-License-Identifier: MIT

// Package moler multiplexes a single text-oriented byte stream — a serial
// terminal, a Telnet/SSH shell, a TCP pipe, or an in-memory test fixture —
// into many concurrently active, independently parsing, independently timed
// watchers.
//
// A [Connection] decodes incoming bytes into strings and fans them out, in
// arrival order, to every subscribed observer. An observer is either a
// [Command] (sends a line, parses the reply, completes once) or an [Event]
// (passively watches for one or more occurrences of something and may run
// for the lifetime of a session). A [Runner] owns the background execution
// of observers: it enforces their lifetime and inactivity timeouts and
// drives their teardown when cancelled or shut down.
//
// # Layers
//
// Transport adapters (TCP, SSH, a pseudoterminal, an in-memory loopback) are
// outside this package; they need only satisfy [Transport] and call
// [Connection.DataReceived] as bytes arrive. This package owns the
// [Connection], the [Observer] state machine, and the [Runner] that drives
// it — concrete command/event catalogues (see cmd/unixcmd, event/unixevent)
// are collaborators, not the core.
//
// # Concurrency
//
// [Connection.DataReceived] may be called concurrently with
// [Connection.Subscribe] and [Connection.Unsubscribe] from unrelated
// goroutines; the subscriber set is mutex-protected and snapshotted for
// each delivery round. Each subscriber is fed from its own queue and
// consumer goroutine, so a slow parser never blocks the connection's
// receive path, and a subscriber never sees two chunks concurrently.
package moler
