package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	logger *slog.Logger
}

// CronLogger adapts slog to the robfig/cron logger interface. Routine cron
// chatter is emitted at debug.
func CronLogger(l *slog.Logger) cron.Logger {
	return cronLogger{logger: OrNop(l)}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
