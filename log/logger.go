// Package log wraps zerolog behind a small context-aware interface. Every
// entry logged with a context carrying a valid span gets trace_id and span_id.
package log

import "context"

// Fields are structured key/value pairs attached to a log entry.
type Fields = map[string]interface{}

// Logger defines a standard interface for logging.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields) // Calls os.Exit(1)
	With(fields Fields) Logger                                         // Returns a new logger with added structured fields
}
