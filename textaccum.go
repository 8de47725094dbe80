// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/textualgeneric.py (accumulate chunks
// into full/partial lines, wait for command echo before parsing, detect
// end-of-output via a prompt regex, strip a Ctrl-C prefix from a candidate
// prompt line) and original_source/moler/regexhelper.py (a small capture
// holder wrapping the last successful match).

package moler

import (
	"regexp"
	"strings"
)

// echoWindow is how many leading/trailing characters of commandString are
// used to build the echo-detection regex, so a long command that wraps in
// a terminal still matches.
const echoWindow = 40

// lineAssembler turns a stream of data chunks into full lines plus a
// trailing partial line carried over to the next chunk.
type lineAssembler struct {
	pending string
}

// feed appends chunk to any carried-over partial line, splits on '\n', and
// returns the completed (newline-terminated) lines. Any trailing fragment
// without a newline is kept for the next call.
func (a *lineAssembler) feed(chunk string) []string {
	a.pending += chunk
	if !strings.Contains(a.pending, "\n") {
		return nil
	}
	parts := strings.Split(a.pending, "\n")
	full := parts[:len(parts)-1]
	a.pending = parts[len(parts)-1]
	return full
}

// flushPartial returns any fragment not yet terminated by a newline, for
// callers that want to inspect a partial prompt line (e.g. a prompt with no
// trailing newline). The fragment stays pending, so the next feed still
// prepends it.
func (a *lineAssembler) flushPartial() string {
	return a.pending
}

// RegexHolder remembers the last successful match of a set of candidate
// regexes against a line, for parsers that need a shared capture holder.
type RegexHolder struct {
	lastMatch  *regexp.Regexp
	lastGroups []string
}

// MatchAny returns the first regex in candidates that matches line, storing
// its capture groups for later retrieval via Groups.
func (h *RegexHolder) MatchAny(line string, candidates []*regexp.Regexp) *regexp.Regexp {
	for _, re := range candidates {
		if groups := re.FindStringSubmatch(line); groups != nil {
			h.lastMatch = re
			h.lastGroups = groups
			return re
		}
	}
	return nil
}

// Groups returns the capture groups of the most recent successful match.
func (h *RegexHolder) Groups() []string { return h.lastGroups }

// buildEchoRegex derives a regex that matches the echo of commandString,
// tolerant of terminal wrapping: it anchors on the first and last
// echoWindow characters rather than the whole string.
func buildEchoRegex(commandString string) *regexp.Regexp {
	cmd := strings.TrimRight(commandString, "\r\n")
	if cmd == "" {
		return regexp.MustCompile(`^$`)
	}
	if len(cmd) <= 2*echoWindow {
		return regexp.MustCompile(regexp.QuoteMeta(cmd))
	}
	head := regexp.QuoteMeta(cmd[:echoWindow])
	tail := regexp.QuoteMeta(cmd[len(cmd)-echoWindow:])
	return regexp.MustCompile(head + `[\s\S]*` + tail)
}

// stripCtrlCPrefix removes a leading ^C (0x03, possibly rendered as the
// literal two characters "^C" by some terminals) from a candidate prompt
// line before matching.
func stripCtrlCPrefix(line string) string {
	line = strings.TrimPrefix(line, "\x03")
	line = strings.TrimPrefix(line, "^C")
	return line
}
