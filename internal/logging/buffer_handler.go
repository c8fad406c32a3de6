package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// LogCallback receives every entry written by a BufferHandler.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler feeding the package ring buffer and log
// callback. The "module" and "camera" attributes are lifted into the entry;
// everything else lands in Attributes with group names joined by dots.
type BufferHandler struct {
	level  slog.Leveler
	attrs  []prefixedAttr
	prefix string
}

// prefixedAttr is an attribute bound with WithAttrs under the groups open
// at the time.
type prefixedAttr struct {
	prefix string
	attr   slog.Attr
}

// NewBufferHandler creates a handler gated by level.
func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. The buffer and callback are looked up per
// record so loggers created before Initialize still reach them.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	mutex.RLock()
	buffer, callback := logBuffer, logCallback
	mutex.RUnlock()
	if buffer == nil && callback == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelToString(r.Level),
		Module:    "app",
		Message:   r.Message,
	}
	for _, pa := range h.attrs {
		collect(&entry, pa.prefix, pa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(&entry, h.prefix, a)
		return true
	})

	if buffer != nil {
		entry.Seq = buffer.Write(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

// collect stores a under prefix. Top-level module and camera attributes
// are lifted into the entry.
func collect(entry *LogEntry, prefix string, a slog.Attr) {
	if prefix == "" {
		switch a.Key {
		case "module":
			entry.Module = a.Value.String()
			return
		case "camera":
			entry.CameraID = a.Value.String()
			return
		}
	}
	if entry.Attributes == nil {
		entry.Attributes = make(map[string]any)
	}
	putAttr(entry.Attributes, prefix, a)
}

func putAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			putAttr(dst, key+".", ga)
		}
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = v.Any()
		}
	default:
		dst[key] = v.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := slices.Clip(h.attrs)
	for _, a := range attrs {
		bound = append(bound, prefixedAttr{prefix: h.prefix, attr: a})
	}
	return &BufferHandler{level: h.level, attrs: bound, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &BufferHandler{
		level:  h.level,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}

// FormatLogLine renders entry as a single line:
// "<time> [LEVEL] [module] (camera) message key=value ...".
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(" [" + strings.ToUpper(entry.Level) + "] [" + entry.Module + "] ")
	if entry.CameraID != "" {
		sb.WriteString("(" + entry.CameraID + ") ")
	}
	sb.WriteString(entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Attributes)) {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attributes[k])
	}
	return sb.String()
}
