package email

import (
	"context"

	"go.uber.org/zap"
)

// LogClient writes messages to the logger instead of sending them. Used in development.
type LogClient struct {
	from   string
	logger *zap.Logger
}

// NewLogClient constructs the client.
func NewLogClient(from string, logger *zap.Logger) *LogClient {
	return &LogClient{from: from, logger: logger.With(zap.String("component", "email_log"))}
}

func (l *LogClient) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Info("email",
		zap.String("from", l.from),
		zap.String("to", recipient),
		zap.String("subject", subject),
		zap.String("text", textBody),
		zap.Int("html_bytes", len(htmlBody)))
	return nil
}
