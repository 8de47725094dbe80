// SPDX-License-Identifier: MIT

package moler_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsrun/moler"
	"github.com/obsrun/moler/cmd/unixcmd"
)

func newOpenConnection(t *testing.T) (*moler.Connection, chan string) {
	t.Helper()
	conn := moler.NewConnection("test", nil)
	conn.Open()
	sent := make(chan string, 8)
	conn.SetSendFunc(func(data []byte) (int, error) {
		sent <- string(data)
		return len(data), nil
	}, nil)
	return conn, sent
}

// Scenario 1: echo-then-prompt command.
func TestEchoThenPromptCommand(t *testing.T) {
	conn, sent := newOpenConnection(t)
	defer conn.Shutdown()
	runner := moler.NewPooled()
	defer runner.Shutdown()

	ls := unixcmd.NewLs(conn, runner, "")
	ls.SetPromptRegexp(regexp.MustCompile(`host:~ # $`))

	_, err := ls.Start()
	require.NoError(t, err)

	select {
	case s := <-sent:
		assert.Equal(t, "ls\n", s)
	case <-time.After(time.Second):
		t.Fatal("command string was never sent")
	}

	require.NoError(t, conn.DataReceived([]byte("ls\nfile1 file2\nhost:~ # "), time.Now()))

	result, err := ls.AwaitDone(time.Second)
	require.NoError(t, err)
	entries, ok := result.([]string)
	require.True(t, ok)
	assert.Contains(t, entries, "file1")
	assert.Contains(t, entries, "file2")
	assert.True(t, ls.Done())
	assert.Equal(t, moler.Resolved, ls.DoneKind())
}

// Scenario 2: command failure.
func TestCommandFailure(t *testing.T) {
	conn, _ := newOpenConnection(t)
	defer conn.Shutdown()
	runner := moler.NewPooled()
	defer runner.Shutdown()

	cmd := newFooCommand(conn, runner)
	_, err := cmd.Start()
	require.NoError(t, err)

	require.NoError(t, conn.DataReceived(
		[]byte("foo\nbash: foo: command not found\nhost:~ # "), time.Now()))

	_, err = cmd.AwaitDone(time.Second)
	require.Error(t, err)
	var failure *moler.CommandFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Message, "command not found")
	assert.Equal(t, moler.Failed, cmd.DoneKind())
}

// newFooCommand builds a minimal command around "foo", a command unix
// doesn't have, to exercise the failure-regexp path.
func newFooCommand(conn *moler.Connection, runner moler.Runner) *fooCommand {
	c := &fooCommand{}
	base := moler.NewCommand("foo", conn, runner, c, func() string { return "foo" })
	base.AddFailureRegexp(moler.DefaultFailureRegexp())
	c.Command = base
	return c
}

type fooCommand struct {
	moler.Command
}

// Scenario 3: timeout with Ctrl-C break, and the terminating-window rule.
func TestTimeoutWithCtrlCBreak(t *testing.T) {
	t.Run("grace elapses without prompt", func(t *testing.T) {
		conn, sent := newOpenConnection(t)
		defer conn.Shutdown()
		runner := moler.NewPooled()
		defer runner.Shutdown()

		cmd := newFooCommand(conn, runner)
		cmd.SetBreakOnTimeout(true)
		cmd.SetTerminatingTimeout(200 * time.Millisecond)

		_, err := cmd.Start(300 * time.Millisecond)
		require.NoError(t, err)
		<-sent // the initial "foo\n" send

		select {
		case s := <-sent:
			assert.Equal(t, "\x03", s)
		case <-time.After(time.Second):
			t.Fatal("ctrl-c was never sent on timeout")
		}

		_, err = cmd.AwaitDone(2 * time.Second)
		require.Error(t, err)
		var timeout *moler.CommandTimeout
		assert.ErrorAs(t, err, &timeout)
		assert.Equal(t, moler.TimedOut, cmd.DoneKind())
	})

	t.Run("prompt arrives during terminating grace", func(t *testing.T) {
		conn, sent := newOpenConnection(t)
		defer conn.Shutdown()
		runner := moler.NewPooled()
		defer runner.Shutdown()

		cmd := newFooCommand(conn, runner)
		cmd.SetBreakOnTimeout(true)
		cmd.SetTerminatingTimeout(2 * time.Second)

		_, err := cmd.Start(300 * time.Millisecond)
		require.NoError(t, err)
		<-sent

		select {
		case <-sent:
		case <-time.After(time.Second):
			t.Fatal("ctrl-c was never sent on timeout")
		}

		require.NoError(t, conn.DataReceived([]byte("foo\nhost:~ # "), time.Now()))

		_, err = cmd.AwaitDone(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, moler.Resolved, cmd.DoneKind())
	})
}
