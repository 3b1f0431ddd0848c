package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/config"
)

// SMTPClient sends multipart text+html messages over SMTP.
type SMTPClient struct {
	host     string
	port     int
	from     string
	username string
	password string
	tlsMode  string // "auto" | "starttls" | "ssl" | "none"
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSMTPClient constructs the client from email config.
func NewSMTPClient(cfg config.EmailConfig, logger *zap.Logger) *SMTPClient {
	return &SMTPClient{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.Sender,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		tlsMode:  cfg.SMTPTLSMode,
		timeout:  cfg.Timeout,
		logger:   logger.With(zap.String("component", "smtp"), zap.String("host", cfg.SMTPHost)),
	}
}

func (s *SMTPClient) message(recipient, subject, htmlBody, textBody string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)
	return m
}

func (s *SMTPClient) dialer() *mail.Dialer {
	d := mail.NewDialer(s.host, s.port, s.username, s.password)
	d.TLSConfig = &tls.Config{ServerName: s.host}
	if s.timeout > 0 {
		d.Timeout = s.timeout
	}
	switch s.tlsMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d
}

// Send dials the server for each message. The dial itself is not cancellable,
// so ctx is only checked before connecting.
func (s *SMTPClient) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer().DialAndSend(s.message(recipient, subject, htmlBody, textBody)); err != nil {
		s.logger.Debug("smtp send failed", zap.String("to", recipient), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
