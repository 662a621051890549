package notify

import (
	"context"

	"github.com/quantfold/screener/pkg/logger"
)

// Notifier publishes operator notifications. Publish is fire-and-forget from
// the workflow's point of view: failures are logged by callers, never fatal.
type Notifier interface {
	Publish(ctx context.Context, subject, body string) error
}

// Log is a notifier that only writes to the log. Used in development and as
// the fallback when SNS is disabled.
type Log struct {
	logger *logger.Logger
}

// NewLog creates a log-only notifier.
func NewLog(log *logger.Logger) *Log {
	return &Log{logger: log.WithField("module", "notify")}
}

// Publish logs the notification.
func (n *Log) Publish(_ context.Context, subject, body string) error {
	n.logger.WithFields(map[string]interface{}{
		"subject": subject,
		"body":    body,
	}).Info("Notification")
	return nil
}
