package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// handler routes slog records into a Log actor so components can keep
// the ordinary slog call style (logger.Info("msg", "k", v)).
type handler struct {
	log   Log
	attrs []slog.Attr
	group string
}

// NewLogger returns an *slog.Logger that forwards into l.
func NewLogger(l Log) *slog.Logger {
	return slog.New(&handler{log: l})
}

// NullLogger returns a logger that discards all output.
func NullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (h *handler) Enabled(_ context.Context, _ slog.Level) bool {
	// Level filtering happens inside the actor.
	return true
}

func (h *handler) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)
	appendAttr := func(a slog.Attr) {
		key := a.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, a.Value)
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})
	h.log.Log(rec.Level, b.String())
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{log: h.log, attrs: merged, group: h.group}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &handler{log: h.log, attrs: h.attrs, group: group}
}
