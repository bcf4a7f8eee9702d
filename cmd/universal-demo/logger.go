package main

import (
	"github.com/hashicorp/go-hclog"

	universal "github.com/goliatone/go-universal"
)

// hclogLogger forwards provider and driver events to hclog.
type hclogLogger struct {
	logger hclog.Logger
}

func newLogger(level string) hclogLogger {
	return hclogLogger{logger: hclog.New(&hclog.LoggerOptions{
		Name:  "universal-demo",
		Level: hclog.LevelFromString(level),
	})}
}

func (l hclogLogger) Log(event universal.LogEvent) {
	args := []any{
		"stage", event.Stage,
		"environment", event.Environment.String(),
		"duration", event.Duration,
	}
	if event.Key != "" {
		args = append(args, "key", event.Key)
	}
	if event.PassID != "" {
		args = append(args, "pass_id", event.PassID)
	}
	if event.Err != nil {
		l.logger.Error("universal event failed", append(args, "error", event.Err)...)
		return
	}
	l.logger.Debug("universal event", args...)
}
