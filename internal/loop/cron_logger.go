package loop

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronLogger adapts zap to the cron.Logger interface.
type CronLogger struct {
	logger *zap.SugaredLogger
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger wraps logger for use with cron.WithLogger.
func NewCronLogger(logger *zap.Logger) *CronLogger {
	return &CronLogger{logger: logger.Sugar()}
}

// Info logs routine scheduler messages at debug level; cron is chatty.
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debugw("cron-"+msg, keysAndValues...)
}

// Error logs scheduler errors, including recovered job panics.
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Errorw("cron-"+msg, append(keysAndValues, "error", err)...)
}
