package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// ColorTextHandler is a slog.Handler producing human-readable single-line
// records, optionally colorized when writing to a terminal.
type ColorTextHandler struct {
	opts     *slog.HandlerOptions
	w        io.Writer
	mu       *sync.Mutex
	attrs    []slog.Attr
	prefix   string // dotted group prefix applied to attr keys
	useColor bool
}

// NewColorTextHandler creates a ColorTextHandler writing to w.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &ColorTextHandler{
		opts:     opts,
		w:        w,
		mu:       &sync.Mutex{},
		useColor: useColor,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes a log record
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	sb.WriteString("] [")
	sb.WriteString(h.levelLabel(r.Level))
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	for _, attr := range h.attrs {
		h.writeAttr(&sb, attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&sb, a)
		return true
	})
	sb.WriteByte('\n')

	// Only the write itself needs the lock.
	h.mu.Lock()
	_, err := io.WriteString(h.w, sb.String())
	h.mu.Unlock()
	return err
}

func (h *ColorTextHandler) levelLabel(level slog.Level) string {
	var label, color string
	switch {
	case level < slog.LevelInfo:
		label, color = "DEBUG", ansiGray
	case level < slog.LevelWarn:
		label, color = "INFO", ansiGreen
	case level < slog.LevelError:
		label, color = "WARN", ansiYellow
	default:
		label, color = "ERROR", ansiRed
	}
	if h.useColor {
		return color + label + ansiReset
	}
	return label
}

func (h *ColorTextHandler) writeAttr(sb *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	key := h.prefix + a.Key
	val := renderValue(a.Value)

	if h.useColor {
		fmt.Fprintf(sb, " %s%s%s=%s", ansiCyan, key, ansiReset, val)
	} else {
		fmt.Fprintf(sb, " %s=%s", key, val)
	}
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case slog.KindFloat64:
		return fmt.Sprintf("%.3f", v.Float64())
	case slog.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}

// WithAttrs returns a new handler with additional attrs
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{
		opts:     h.opts,
		w:        h.w,
		mu:       h.mu, // share with parent so writes stay serialized
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
		prefix:   h.prefix,
		useColor: h.useColor,
	}
}

// WithGroup returns a new handler that prefixes attr keys with the group name
func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ColorTextHandler{
		opts:     h.opts,
		w:        h.w,
		mu:       h.mu,
		attrs:    append([]slog.Attr{}, h.attrs...),
		prefix:   h.prefix + name + ".",
		useColor: h.useColor,
	}
}
