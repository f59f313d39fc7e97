package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that forwards records to the provided
// Logger. Installing it as the slog default lets library code that logs via
// slog end up in the same file as everything else.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogAdapter{log: l}
}

type slogAdapter struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogAdapter) Enabled(_ context.Context, level slog.Level) bool {
	if h.log == nil {
		return false
	}
	return slogLevelToLoggerLevel(level) >= h.log.GetLevel()
}

func (h *slogAdapter) Handle(_ context.Context, record slog.Record) error {
	if h.log == nil {
		return nil
	}

	message := record.Message

	combined := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	combined = append(combined, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		combined = append(combined, attr)
		return true
	})

	if attrText := formatAttrs(combined, h.groups); attrText != "" {
		if message != "" {
			message = message + " " + attrText
		} else {
			message = attrText
		}
	}

	switch slogLevelToLoggerLevel(record.Level) {
	case LevelDebug:
		h.log.Debug("%s", message)
	case LevelInfo:
		h.log.Info("%s", message)
	case LevelWarn:
		h.log.Warn("%s", message)
	default:
		h.log.Error("%s", message)
	}
	return nil
}

func (h *slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &slogAdapter{log: h.log, groups: h.groups, attrs: combined}
}

func (h *slogAdapter) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &slogAdapter{log: h.log, groups: groups, attrs: h.attrs}
}

func slogLevelToLoggerLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return LevelDebug
	case level < slog.LevelWarn:
		return LevelInfo
	case level < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}

func formatAttrs(attrs []slog.Attr, groups []string) string {
	if len(attrs) == 0 {
		return ""
	}

	prefix := ""
	if len(groups) > 0 {
		prefix = strings.Join(groups, ".") + "."
	}

	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s%s=%v", prefix, attr.Key, attr.Value.Any()))
	}
	return strings.Join(parts, " ")
}
