package access

import "github.com/classware/access/logger"

// Logger is re-exported so callers wiring the engine don't need a second
// import for the common case.
type Logger = logger.Logger

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a correlation ID generator; its output is attached
// to decision logs and audit entries.
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}
