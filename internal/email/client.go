// Package email provides the outbound transports used to reach subscribers.
//
// Every transport implements Client. Implementations must be safe for
// concurrent use because the newsletter dispatcher fans out sends.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/config"
)

// Client hands one message for one recipient to the transport.
type Client interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}

// NewClient builds the transport selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.EmailConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.EmailProviderSMTP:
		return NewSMTPClient(cfg, logger), nil
	case config.EmailProviderSES:
		return NewSESClient(ctx, cfg, logger)
	case config.EmailProviderLog, "":
		return NewLogClient(cfg.Sender, logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
