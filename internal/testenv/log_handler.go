// Package testenv holds helpers shared by tests.
package testenv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogRecorder is a slog.Handler that keeps every record as a line of the
// form "LEVEL: message key=value, key=value", without timestamps, so tests
// can assert on what was logged.
type LogRecorder struct {
	mu    *sync.Mutex
	lines *[]string
	attrs []slog.Attr
}

func NewLogRecorder() *LogRecorder {
	return &LogRecorder{
		mu:    &sync.Mutex{},
		lines: &[]string{},
	}
}

//nolint:gocritic
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	line := fmt.Sprintf("%s: %s", r.Level, r.Message)
	if attrs := h.attrsToString(&r); attrs != "" {
		line += " " + attrs
	}

	h.mu.Lock()
	*h.lines = append(*h.lines, line)
	h.mu.Unlock()
	return nil
}

func (h *LogRecorder) attrsToString(r *slog.Record) string {
	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", attr.Key, attr.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})
	return strings.Join(parts, ", ")
}

func (h *LogRecorder) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{
		mu:    h.mu,
		lines: h.lines,
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

// WithGroup is not supported; records keep their flat keys.
func (h *LogRecorder) WithGroup(string) slog.Handler {
	return h
}

func (h *LogRecorder) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), *h.lines...)
}

// Count returns how many recorded messages start with prefix.
func (h *LogRecorder) Count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, line := range *h.lines {
		if _, msg, ok := strings.Cut(line, ": "); ok && strings.HasPrefix(msg, prefix) {
			n++
		}
	}
	return n
}
