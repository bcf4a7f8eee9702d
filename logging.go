package universal

import "time"

// LogEvent describes one provider or channel step for logging.
type LogEvent struct {
	Stage       string
	Key         string
	PassID      string
	Environment RenderEnvironment
	Duration    time.Duration
	Err         error
}

// Logger records provider events.
type Logger interface {
	Log(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// Log implements Logger.
func (f LoggerFunc) Log(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) Log(LogEvent) {}
