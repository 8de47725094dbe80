// SPDX-License-Identifier: MIT
//
// Adapted from: bassosimone-nop's SLogger abstraction (slogger.go) — we keep
// the "accept an interface, default to a discarding no-op" convention but
// wrap log/slog directly instead of re-declaring a narrower interface, since
// this package also needs slog's custom-level and attribute machinery.

// Package mlog provides the structured logging conventions this module
// uses for every connection: a "moler.connection.<name>" logger name, a
// transferDirection attribute ('>' sent, '<' received, ' ' general), and
// two extra levels below slog.LevelDebug for per-chunk and raw-byte
// tracing. Logging is silent (discarded) unless a handler is configured,
// matching the pack's "off unless configured" convention.
package mlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Extra levels below slog.LevelDebug (-4), per spec: TRACE is used for
// per-chunk events, RAW_DATA for raw byte dumps.
const (
	LevelTrace   slog.Level = -8
	LevelRawData slog.Level = -12
)

// Direction marks the flow a log record describes.
type Direction byte

const (
	DirGeneral  Direction = ' '
	DirSent     Direction = '>'
	DirReceived Direction = '<'
)

// DirectionKey is the slog attribute key carrying a [Direction].
const DirectionKey = "transferDirection"

// New returns a logger named "moler.connection.<name>" writing through h.
// A nil handler yields a logger that discards everything.
func New(h slog.Handler, name string) *slog.Logger {
	if h == nil {
		h = discardHandler{}
	}
	return slog.New(h).With(slog.String("logger", "moler.connection."+name))
}

// Discard returns a logger that drops every record, used as the default
// when the caller configures no sink.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// WithDirection returns args with the transferDirection attribute prepended,
// so call sites read naturally: logger.Debug("send", mlog.WithDirection(DirSent)...).
func WithDirection(d Direction) []any {
	return []any{slog.String(DirectionKey, string(rune(d)))}
}

// AlignHandler wraps another handler so that multi-line log messages get
// their transferDirection mark rendered in a fixed left column: every
// continuation line starts with the mark followed by a space. This is cosmetic and only matters
// for handlers writing to a human-facing stream (e.g. a TextHandler over a
// terminal), so it wraps the message text before handing the record to the
// inner handler.
type AlignHandler struct {
	inner slog.Handler
}

// NewAlignHandler wraps inner, rewriting multi-line "msg" values so each
// line after the first starts with the record's direction mark and a space.
func NewAlignHandler(inner slog.Handler) *AlignHandler {
	return &AlignHandler{inner: inner}
}

func (h *AlignHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AlignHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AlignHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *AlignHandler) WithGroup(name string) slog.Handler {
	return &AlignHandler{inner: h.inner.WithGroup(name)}
}

func (h *AlignHandler) Handle(ctx context.Context, r slog.Record) error {
	if !strings.Contains(r.Message, "\n") {
		return h.inner.Handle(ctx, r)
	}
	dir := DirGeneral
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == DirectionKey {
			s := a.Value.String()
			if len(s) > 0 {
				dir = Direction(s[0])
			}
			return false
		}
		return true
	})
	indent := fmt.Sprintf("\n%c ", dir)
	aligned := r.Clone()
	aligned.Message = strings.ReplaceAll(r.Message, "\n", indent)
	return h.inner.Handle(ctx, aligned)
}
