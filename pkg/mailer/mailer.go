package mailer

import (
	"context"

	"github.com/diagnosis/photo-challenges/pkg/config"
	"github.com/diagnosis/photo-challenges/pkg/logger"
)

type Service interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error)
}

// New picks the transport: dev logger, MailerSend when an API key is set, SMTP otherwise.
func New(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		logger.Info("Mailer in dev mode, emails are logged only")
		return &DevMailer{}
	case cfg.MailerSendKey != "":
		return NewMailer(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

type DevMailer struct{}

func (d *DevMailer) Send(ctx context.Context, toEmail, toName, subject, text, _ string) (string, error) {
	logger.InfoContext(ctx, "Dev email",
		"to", toEmail,
		"to_name", toName,
		"subject", subject,
		"text", text,
	)
	return "dev", nil
}
