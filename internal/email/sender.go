package email

import (
	"context"
	"fmt"
	"strings"

	"greendrake/chambers/internal/config"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Sender defines the interface for sending emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	cfg    *config.Config
	dialer *gomail.Dialer
}

// NewSMTPSender returns an SMTP sender, or a logging sender when no SMTP
// host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		log.Warn().Msg("SMTP host not configured, using logging email sender")
		return &LoggingSender{cfg: cfg}
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SmtpHost, cfg.SmtpPort, cfg.SmtpUsername, cfg.SmtpPassword),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.SmtpFromAddress)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Info().Strs("to", msg.To).Str("template", string(msg.Template)).Msg("email sent via SMTP")
	return nil
}

// LoggingSender only logs messages. Used in development.
type LoggingSender struct {
	cfg *config.Config
}

func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	log.Info().
		Strs("to", msg.To).
		Str("from", s.cfg.SmtpFromAddress).
		Str("subject", msg.Subject).
		Str("template", string(msg.Template)).
		Str("body", strings.TrimSpace(msg.Body)).
		Msg("email logged")
	return nil
}
