// SPDX-License-Identifier: MIT

package moler_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsrun/moler"
	"github.com/obsrun/moler/event/unixevent"
)

// Scenario 4: event multi-match.
func TestEventMultiMatch(t *testing.T) {
	conn := moler.NewConnection("test", nil)
	conn.Open()
	defer conn.Shutdown()
	runner := moler.NewShared()
	defer runner.Shutdown()

	det := unixevent.NewNetworkDownDetector(conn, runner, "", 3)

	var mu sync.Mutex
	var callbackCount int
	det.SetCallback(func(moler.Occurrence) {
		mu.Lock()
		callbackCount++
		mu.Unlock()
	})

	_, err := det.Start()
	require.NoError(t, err)

	lines := []string{
		"64 bytes from 10.0.2.15: icmp_req=1 ttl=64 time=0.080 ms\n",
		"ping: sendmsg: Network is unreachable\n",
		"64 bytes from 10.0.2.15: icmp_req=2 ttl=64 time=0.037 ms\n",
		"ping: sendmsg: Network is unreachable\n",
		"ping: sendmsg: Network is unreachable\n",
	}
	for _, line := range lines {
		require.NoError(t, conn.DataReceived([]byte(line), time.Now()))
	}

	result, err := det.AwaitDone(time.Second)
	require.NoError(t, err)

	occurrences, ok := result.([]moler.Occurrence)
	require.True(t, ok)
	assert.Len(t, occurrences, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, callbackCount)
}

// NetworkUpDetector is the mirror image of NetworkDownDetector: it resolves
// once its phrase (a successful ping reply by default) is seen.
func TestEventNetworkUpDetector(t *testing.T) {
	conn := moler.NewConnection("test", nil)
	conn.Open()
	defer conn.Shutdown()
	runner := moler.NewShared()
	defer runner.Shutdown()

	up := unixevent.NewNetworkUpDetector(conn, runner, "", 1)

	_, err := up.Start()
	require.NoError(t, err)

	require.NoError(t, conn.DataReceived([]byte("ping: sendmsg: Network is unreachable\n"), time.Now()))
	require.NoError(t, conn.DataReceived([]byte("64 bytes from 10.0.2.15: icmp_req=3 ttl=64 time=0.041 ms\n"), time.Now()))

	result, err := up.AwaitDone(time.Second)
	require.NoError(t, err)

	occurrences, ok := result.([]moler.Occurrence)
	require.True(t, ok)
	require.Len(t, occurrences, 1)
}

// An event with ForeverTillOccurs never self-completes; it must be
// cancellable instead.
func TestEventRunsForeverUntilCancelled(t *testing.T) {
	conn := moler.NewConnection("test", nil)
	conn.Open()
	defer conn.Shutdown()
	runner := moler.NewPooled()
	defer runner.Shutdown()

	det := unixevent.NewNetworkDownDetector(conn, runner, "", moler.ForeverTillOccurs)

	_, err := det.Start()
	require.NoError(t, err)

	require.NoError(t, conn.DataReceived([]byte("Network is unreachable\n"), time.Now()))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, det.Done())
	assert.Len(t, det.Occurrences(), 1)

	assert.True(t, det.Cancel())
	assert.True(t, det.Done())
	assert.Equal(t, moler.Cancelled, det.DoneKind())
}
