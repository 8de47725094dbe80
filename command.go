// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/command.py (subscribe-then-send
// ordering, break-on-timeout) and original_source/moler/cmd/commandtextualgeneric.py
// (echo detection, prompt matching, retRequired, CommandFailure lines).

package moler

import (
	"regexp"
	"sync"
	"time"
)

// LineHandler is the override point concrete commands and line-oriented
// events implement to react to each assembled line.
type LineHandler interface {
	OnNewLine(line string, isFullLine bool)
}

// CommandLike is the capability interface the runner uses to recognise a
// command: a tagged variant plus additional capability interfaces, rather
// than a type switch over every concrete command type.
type CommandLike interface {
	Observer
	LineHandler
	CommandString() string
	RetRequired() bool
	BreakOnTimeout() bool
}

// Command sends CommandString() once, at the moment its subscription
// succeeds, then parses replies line by line until a line matches
// the prompt regexp, at which point it resolves with CurrentRet.
type Command struct {
	Base

	self LineHandler // outer concrete type; defaults to the Command itself

	buildCommandString func() string
	builtCommand       string
	buildOnce          sync.Once

	retRequired    bool
	breakOnTimeout bool

	promptRegexp        *regexp.Regexp
	ctrlCPrefixTolerant bool
	failureRegexps      []*regexp.Regexp

	lines     lineAssembler
	seenEcho  bool
	echoRE    *regexp.Regexp
	preEcho   []string // lines discarded before the echo was seen, cached
	CurrentRet any
}

// NewCommand wires a command's shared state. self is the outermost
// concrete type (embedding Command, embedding Base); it receives OnNewLine
// callbacks. build lazily produces the exact line to send; it is called at
// most once, and its result is cached and used to derive the echo regex.
func NewCommand(name string, conn *Connection, runner Runner, self CommandLike, build func() string) Command {
	return Command{
		Base:               NewBase(name, conn, runner, self),
		self:               self,
		buildCommandString: build,
		promptRegexp:       regexp.MustCompile(`[$#>]\s*$`),
	}
}

// DefaultFailureRegexp matches the handful of shell error phrasings common
// enough across Unix commands to be worth a shared default, rather than
// every illustrative command re-declaring its own.
func DefaultFailureRegexp() *regexp.Regexp {
	return regexp.MustCompile(`(?i)command not found|no such file or directory|permission denied`)
}

// SetPromptRegexp overrides the default end-of-output prompt regex.
func (c *Command) SetPromptRegexp(re *regexp.Regexp) { c.promptRegexp = re }

// SetCtrlCPrefixTolerant enables stripping a leading ^C from candidate
// prompt lines before matching.
func (c *Command) SetCtrlCPrefixTolerant(tolerant bool) { c.ctrlCPrefixTolerant = tolerant }

// AddFailureRegexp registers a pattern that, if matched by a full line,
// fails the command with [CommandFailure].
func (c *Command) AddFailureRegexp(re *regexp.Regexp) {
	c.failureRegexps = append(c.failureRegexps, re)
}

// SetRetRequired controls whether an empty/zero-valued CurrentRet at the
// prompt line counts as completion.
func (c *Command) SetRetRequired(required bool) { c.retRequired = required }

// SetBreakOnTimeout controls whether OnTimeout sends an interrupt byte.
func (c *Command) SetBreakOnTimeout(b bool) { c.breakOnTimeout = b }

// CommandString lazily builds (once) and returns the exact string to send.
func (c *Command) CommandString() string {
	c.buildOnce.Do(func() {
		c.builtCommand = c.buildCommandString()
		c.echoRE = buildEchoRegex(c.builtCommand)
	})
	return c.builtCommand
}

// RetRequired implements [CommandLike].
func (c *Command) RetRequired() bool { return c.retRequired }

// BreakOnTimeout implements [CommandLike].
func (c *Command) BreakOnTimeout() bool { return c.breakOnTimeout }

// OnNewLine is the default no-op override point; concrete commands
// typically shadow this by implementing their own OnNewLine and passing
// themselves as self to [NewCommand].
func (c *Command) OnNewLine(line string, isFullLine bool) {}

// OnTimeout sends the break sequence (conventionally ASCII ETX, 0x03) when
// BreakOnTimeout is set, then lets the terminating grace run.
func (c *Command) OnTimeout() {
	if c.breakOnTimeout {
		_ = c.Connection().Send("\x03", false)
	}
}

// DataReceived implements the textual-accumulator pattern: assemble lines,
// wait for the command's echo, then feed full lines
// to OnNewLine and check each against the prompt (and any failure
// patterns) to decide completion. A prompt conventionally arrives with no
// trailing newline, so the still-pending fragment is also checked against
// the prompt regexp on every chunk, without being treated as a full line.
func (c *Command) DataReceived(data string, recvTime time.Time) {
	full := c.lines.feed(data)
	for _, line := range full {
		c.processLine(line, true)
		if c.Done() {
			return
		}
	}
	if partial := c.lines.flushPartial(); partial != "" {
		c.checkPrompt(partial, false)
	}
}

func (c *Command) processLine(line string, isFull bool) {
	if !c.seenEcho {
		if c.echoRE == nil {
			c.CommandString() // ensure echoRE is built
		}
		if c.echoRE.MatchString(line) {
			c.seenEcho = true
			return // this line is the echo itself, not output
		}
		c.preEcho = append(c.preEcho, line)
		return
	}

	for _, re := range c.failureRegexps {
		if re.MatchString(line) {
			_ = c.SetException(&CommandFailure{Observer: c.Name(), Message: line})
			return
		}
	}

	c.self.OnNewLine(line, isFull)

	c.checkPrompt(line, isFull)
}

// checkPrompt tests candidate (a full line or the still-accumulating
// partial fragment) against promptRegexp and resolves the command if it
// matches and a result is available (or none is required).
func (c *Command) checkPrompt(candidate string, isFull bool) {
	if !c.seenEcho {
		return
	}
	if c.ctrlCPrefixTolerant {
		candidate = stripCtrlCPrefix(candidate)
	}
	if c.promptRegexp.MatchString(candidate) {
		if c.retRequired && isZero(c.CurrentRet) {
			return
		}
		_ = c.SetResult(c.CurrentRet)
	}
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	default:
		return false
	}
}
