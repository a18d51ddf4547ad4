// Package logging defines the four-slot logger accepted by the validator and
// adapters that build one from log/slog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Func is a single logger slot.
type Func func(msg string, fields map[string]any)

// Logger carries independent callbacks per level. A nil slot drops entries of
// that level.
type Logger struct {
	Debug Func
	Info  Func
	Warn  Func
	Error Func
}

// Level selects a logger slot.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Nop returns a logger with every slot empty.
func Nop() Logger {
	return Logger{}
}

// Emit sends msg to the slot matching level. Missing slots are a no-op.
func (l Logger) Emit(level Level, msg string, fields map[string]any) {
	var slot Func
	switch level {
	case LevelDebug:
		slot = l.Debug
	case LevelInfo:
		slot = l.Info
	case LevelWarn:
		slot = l.Warn
	case LevelError:
		slot = l.Error
	}
	if slot == nil {
		return
	}
	slot(msg, fields)
}

// With returns a logger that adds fields to every entry. Caller supplied
// fields win over the bound ones.
func (l Logger) With(bound map[string]any) Logger {
	if len(bound) == 0 {
		return l
	}
	wrap := func(slot Func) Func {
		if slot == nil {
			return nil
		}
		return func(msg string, fields map[string]any) {
			merged := make(map[string]any, len(bound)+len(fields))
			for key, value := range bound {
				merged[key] = value
			}
			for key, value := range fields {
				merged[key] = value
			}
			slot(msg, merged)
		}
	}
	return Logger{
		Debug: wrap(l.Debug),
		Info:  wrap(l.Info),
		Warn:  wrap(l.Warn),
		Error: wrap(l.Error),
	}
}

// Module binds the `module` field.
func (l Logger) Module(name string) Logger {
	return l.With(map[string]any{"module": name})
}

// FromSlog adapts a slog.Logger to the slot shape. Fields are emitted as
// attributes in key order so output is stable.
func FromSlog(logger *slog.Logger) Logger {
	if logger == nil {
		return Nop()
	}
	slot := func(level slog.Level) Func {
		return func(msg string, fields map[string]any) {
			ctx := context.Background()
			if !logger.Enabled(ctx, level) {
				return
			}
			logger.LogAttrs(ctx, level, msg, attrs(fields)...)
		}
	}
	return Logger{
		Debug: slot(slog.LevelDebug),
		Info:  slot(slog.LevelInfo),
		Warn:  slot(slog.LevelWarn),
		Error: slot(slog.LevelError),
	}
}

func attrs(fields map[string]any) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		value := fields[key]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		out = append(out, slog.Any(key, value))
	}
	return out
}

// Format is the slog handler output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures New.
type Config struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string
	// Format is "json" or "text".
	Format string
	// AddSource includes file and line in entries.
	AddSource bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// New builds a slog.Logger from cfg.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	switch Format(strings.ToLower(strings.TrimSpace(cfg.Format))) {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	case FormatJSON, "":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		return nil, fmt.Errorf("logging: invalid format %q", cfg.Format)
	}
	return slog.New(handler), nil
}

// ParseLevel maps a level name onto slog levels. Empty means info.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid level %q", raw)
	}
}
