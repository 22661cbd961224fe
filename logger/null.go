package logger

// NullLogger discards everything. It is the engine default, so callers that
// never install a logger pay nothing.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (*NullLogger) Error(string, ...any) {}
func (*NullLogger) Info(string, ...any)  {}
func (*NullLogger) Debug(string, ...any) {}
