// SPDX-License-Identifier: MIT

package memconn_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obsrun/moler"
	"github.com/obsrun/moler/cmd/unixcmd"
	"github.com/obsrun/moler/transport/memconn"
)

// TestWhoamiOverLoopbackPipe drives a real Command through memconn.Pipe
// instead of a hand-wired SetSendFunc, standing in for a TCP/SSH/PTY/FIFO
// adapter.
func TestWhoamiOverLoopbackPipe(t *testing.T) {
	conn := moler.NewConnection("loopback", nil)
	pipe := memconn.New(conn)
	peer := pipe.Peer()

	sentToPeer := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := peer.Read(buf)
		if err != nil {
			return
		}
		sentToPeer <- string(buf[:n])
		_, _ = peer.Write([]byte("whoami\nroot\nhost:~ # "))
	}()

	require.NoError(t, pipe.Open(context.Background()))
	conn.Open()
	defer conn.Shutdown()
	defer pipe.Close()

	runner := moler.NewPooled()
	defer runner.Shutdown()

	cmd := unixcmd.NewWhoami(conn, runner)
	_, err := cmd.Start()
	require.NoError(t, err)

	result, err := cmd.AwaitDone(time.Second)
	require.NoError(t, err)
	require.Equal(t, "root", result)
	require.Equal(t, "root", cmd.User)

	select {
	case got := <-sentToPeer:
		require.Equal(t, "whoami\n", got)
	case <-time.After(time.Second):
		t.Fatal("command string was never written to the peer")
	}
}
