package job

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own logging into slog. cron reports every wake up
// through Info, so that goes to debug.
type cronLogger struct {
	l *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
