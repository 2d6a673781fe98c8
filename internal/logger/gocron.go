package logger

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger adapts log to gocron's Logger so scheduler internals share
// the application's handler and level.
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogger{log: log.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, pairs(args)...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Info(msg, pairs(args)...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, pairs(args)...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, pairs(args)...) }

// pairs keeps key/value arguments intact and moves a dangling trailing value
// under an "extra" key.
func pairs(args []any) []any {
	if len(args)%2 == 0 {
		return args
	}
	out := make([]any, 0, len(args)+1)
	out = append(out, args[:len(args)-1]...)
	return append(out, "extra", args[len(args)-1])
}
