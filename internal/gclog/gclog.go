// Package gclog wraps the collector's structured logger. All collector
// diagnostics are logged, never surfaced synchronously to the host
// (spec.md §7's "the collector never reports errors to the host
// synchronously"), so this is the one channel failures, phase
// transitions, and exhaustion retries become observable through.
//
// Grounded on other_examples/…pdump-controlplane-ring.go's direct
// *zap.Logger field + zap.String/zap.Uint32 call-site usage — the
// teacher itself (SeleniaProject-Orizon) doesn't reach for a structured
// logger, so this is adopted from the wider retrieval pack per the
// ambient-stack rule that every concern gets the pack's idiomatic
// library, not a hand-rolled stdlib substitute.
package gclog

import "go.uber.org/zap"

// Logger is a thin facade over *zap.Logger with a field-pair calling
// convention (key, value, key, value...) so call sites throughout the
// collector don't need to import zap directly.
type Logger struct {
	z *zap.Logger
}

// New builds a production zap logger.
func New() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop builds a no-op logger, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func fields(kv []any) []zap.Field {
	fs := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fs = append(fs, zap.Any(key, kv[i+1]))
	}
	return fs
}

func (l *Logger) Debug(msg string, kv ...any) { l.z.Debug(msg, fields(kv)...) }
func (l *Logger) Info(msg string, kv ...any)   { l.z.Info(msg, fields(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)   { l.z.Warn(msg, fields(kv)...) }
func (l *Logger) Error(msg string, kv ...any)  { l.z.Error(msg, fields(kv)...) }

// Fatal logs at fatal level then terminates the process, reserved for
// spec.md §7's Invariant-category errors.
func (l *Logger) Fatal(msg string, kv ...any) { l.z.Fatal(msg, fields(kv)...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
