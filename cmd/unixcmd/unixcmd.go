// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/cmd/unix/ctrl_c.py's pattern of a
// small command embedding the textual command base and overriding only
// build_command_string/data handling, generalised to the two simplest
// Unix commands (ls, whoami) as an illustrative catalogue.

// Package unixcmd collects a handful of illustrative Unix commands built
// on top of the textual command base: enough to exercise the full
// subscribe/send/parse/prompt lifecycle without pulling in a whole shell
// command library.
package unixcmd

import (
	"fmt"
	"strings"

	"github.com/obsrun/moler"
)

// Ls lists directory entries by running the "ls" command and splitting
// its output on whitespace.
type Ls struct {
	moler.Command

	Path    string
	Entries []string
}

// NewLs builds an "ls [path]" command bound to conn and driven by runner.
// An empty path lists the current directory.
func NewLs(conn *moler.Connection, runner moler.Runner, path string) *Ls {
	ls := &Ls{Path: path}
	ls.Command = moler.NewCommand("ls", conn, runner, ls, ls.buildCommandString)
	ls.SetRetRequired(true)
	return ls
}

func (l *Ls) buildCommandString() string {
	if l.Path == "" {
		return "ls"
	}
	return "ls " + l.Path
}

// OnNewLine collects every non-empty line of output as directory entries,
// splitting on runs of whitespace the way `ls` columns its output.
func (l *Ls) OnNewLine(line string, isFullLine bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	l.Entries = append(l.Entries, strings.Fields(trimmed)...)
	l.CurrentRet = l.Entries
}

// Whoami runs "whoami" and captures the single line of output as the
// current user name.
type Whoami struct {
	moler.Command

	User string
}

// NewWhoami builds a "whoami" command bound to conn and driven by runner.
func NewWhoami(conn *moler.Connection, runner moler.Runner) *Whoami {
	w := &Whoami{}
	w.Command = moler.NewCommand("whoami", conn, runner, w, func() string { return "whoami" })
	w.SetRetRequired(true)
	w.AddFailureRegexp(moler.DefaultFailureRegexp())
	return w
}

// OnNewLine captures the first non-empty line as the user name.
func (w *Whoami) OnNewLine(line string, isFullLine bool) {
	if w.User != "" {
		return
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	w.User = trimmed
	w.CurrentRet = w.User
}

func (w *Whoami) String() string {
	return fmt.Sprintf("whoami(user=%q)", w.User)
}
