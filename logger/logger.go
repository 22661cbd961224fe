// Package logger defines the minimal structured-logging contract the engine
// depends on, plus adapters for the backends used across deployments.
package logger

// Logger receives a message plus alternating key/value pairs. Implementations
// must be safe for concurrent use; a dangling key without a value is ignored.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc produces the correlation ID attached to decision logs and audit
// entries. Called once per resolution, so it must be cheap and
// concurrency-safe.
type TraceIDFunc func() string
