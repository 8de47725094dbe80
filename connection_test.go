// SPDX-License-Identifier: MIT

package moler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnection() *Connection {
	c := NewConnection("test", nil)
	c.Open()
	return c
}

// Scenario 5: two observers subscribed to the same connection each see a
// chunk exactly once, whole.
func TestMultiSubscriberFanOut(t *testing.T) {
	conn := newTestConnection()
	defer conn.Shutdown()

	var mu sync.Mutex
	var gotA, gotB []string
	var wg sync.WaitGroup
	wg.Add(2)

	conn.Subscribe("a", func(data string, _ time.Time) {
		mu.Lock()
		gotA = append(gotA, data)
		mu.Unlock()
		wg.Done()
	}, nil)
	conn.Subscribe("b", func(data string, _ time.Time) {
		mu.Lock()
		gotB = append(gotB, data)
		mu.Unlock()
		wg.Done()
	}, nil)

	require.NoError(t, conn.DataReceived([]byte("ABC"), time.Now()))

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ABC"}, gotA)
	assert.Equal(t, []string{"ABC"}, gotB)
}

// Scenario 6: a subscriber that unsubscribes itself upon seeing "STOP"
// never sees anything delivered after that, while the connection keeps
// serving other subscribers.
func TestUnsubscribeDuringDelivery(t *testing.T) {
	conn := newTestConnection()
	defer conn.Shutdown()

	var mu sync.Mutex
	var gotSelf []string
	var gotOther []string
	selfDone := make(chan struct{})
	otherDone := make(chan struct{}, 2)

	var handler DataHandler
	handler = func(data string, _ time.Time) {
		mu.Lock()
		gotSelf = append(gotSelf, data)
		mu.Unlock()
		if data == "STOP" {
			conn.Unsubscribe("self", handler)
			close(selfDone)
		}
	}
	conn.Subscribe("self", handler, nil)
	conn.Subscribe("other", func(data string, _ time.Time) {
		mu.Lock()
		gotOther = append(gotOther, data)
		mu.Unlock()
		otherDone <- struct{}{}
	}, nil)

	require.NoError(t, conn.DataReceived([]byte("STOP"), time.Now()))
	<-selfDone
	<-otherDone

	require.NoError(t, conn.DataReceived([]byte("MORE"), time.Now()))
	<-otherDone

	time.Sleep(20 * time.Millisecond) // let a stray delivery (if any) land

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"STOP"}, gotSelf)
	assert.Equal(t, []string{"STOP", "MORE"}, gotOther)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	conn := newTestConnection()
	defer conn.Shutdown()

	var count int
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	h := func(data string, _ time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
	}
	conn.Subscribe("owner", h, nil)
	conn.Subscribe("owner", h, nil)

	require.NoError(t, conn.DataReceived([]byte("x"), time.Now()))
	<-done

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestClosedConnectionIsNoOp(t *testing.T) {
	conn := NewConnection("closed", nil)
	assert.False(t, conn.IsOpen())
	assert.NoError(t, conn.Send("x", false))
	assert.NoError(t, conn.SendLine("x"))

	called := false
	conn.Subscribe("o", func(string, time.Time) { called = true }, nil)
	require.NoError(t, conn.DataReceived([]byte("x"), time.Now()))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, called)
}

func TestShutdownIsIdempotent(t *testing.T) {
	conn := newTestConnection()
	var calls int
	conn.Subscribe("o", func(string, time.Time) {}, func() { calls++ })
	conn.Shutdown()
	conn.Shutdown()
	assert.Equal(t, 1, calls)
	assert.False(t, conn.IsOpen())
}

func TestSetNewlineNoOpWhenUnchanged(t *testing.T) {
	conn := newTestConnection()
	defer conn.Shutdown()
	before := conn.Newline()
	conn.SetNewline(before)
	assert.Equal(t, before, conn.Newline())
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for subscribers")
	}
}
