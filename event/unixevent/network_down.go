// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/test/integration/test_connection_observer_with_external-io.py's
// NetworkDownDetector (data_received scans each chunk for "Network is
// unreachable" and resolves with the detection time) and
// original_source/examples/layer_2/threaded/network_down_detectors.py's
// companion NetworkUpDetector, ported onto this package's [moler.Event].

// Package unixevent collects illustrative passive events: watchers that
// never send anything, only react to data flowing through an already
// subscribed connection.
package unixevent

import (
	"strings"
	"time"

	"github.com/obsrun/moler"
)

// NetworkDownDetector records an occurrence, whose datum is the chunk's
// receive time, each time a chunk contains a phrase indicating the network
// went down (by default "Network is unreachable", the phrasing ping(8)
// uses). It resolves after tillOccursTimes occurrences with the
// occurrences list as its result.
type NetworkDownDetector struct {
	moler.Event

	Phrase string
}

// NewNetworkDownDetector builds a NetworkDownDetector bound to conn and
// driven by runner, resolving after tillOccursTimes matches (1 for a
// one-shot detector, [moler.ForeverTillOccurs] to run for the life of the
// session instead). An empty phrase falls back to ping(8)'s wording.
func NewNetworkDownDetector(conn *moler.Connection, runner moler.Runner, phrase string, tillOccursTimes int) *NetworkDownDetector {
	if phrase == "" {
		phrase = "Network is unreachable"
	}
	d := &NetworkDownDetector{Phrase: phrase}
	d.Event = moler.NewEvent("network-down-detector", conn, runner, d, tillOccursTimes)
	return d
}

// DataReceived scans each raw chunk directly rather than waiting for full
// lines, since the triggering phrase can arrive mid-line.
func (d *NetworkDownDetector) DataReceived(data string, recvTime time.Time) {
	if d.Done() {
		return
	}
	if strings.Contains(data, d.Phrase) {
		d.EventOccurred(recvTime)
	}
}

// NetworkUpDetector records an occurrence, whose datum is the chunk's
// receive time, each time a chunk contains a phrase indicating the network
// recovered (by default a successful ping reply line). It resolves after
// tillOccursTimes occurrences with the occurrences list as its result.
type NetworkUpDetector struct {
	moler.Event

	Phrase string
}

// NewNetworkUpDetector builds a NetworkUpDetector bound to conn and driven
// by runner, resolving after tillOccursTimes matches. An empty phrase
// falls back to a successful ping reply.
func NewNetworkUpDetector(conn *moler.Connection, runner moler.Runner, phrase string, tillOccursTimes int) *NetworkUpDetector {
	if phrase == "" {
		phrase = "bytes from"
	}
	u := &NetworkUpDetector{Phrase: phrase}
	u.Event = moler.NewEvent("network-up-detector", conn, runner, u, tillOccursTimes)
	return u
}

// DataReceived scans each raw chunk directly, same as NetworkDownDetector.
func (u *NetworkUpDetector) DataReceived(data string, recvTime time.Time) {
	if u.Done() {
		return
	}
	if strings.Contains(data, u.Phrase) {
		u.EventOccurred(recvTime)
	}
}
