package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/fx"

	cfgpkg "github.com/otwdelivery/otw-backend/pkg/config"
)

// Mailer sends one HTML email to one recipient. Implementations must treat
// each call as independent; the dispatcher relies on per-recipient isolation.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

type SMTPMailer struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

func NewSMTPMailer(cfg *cfgpkg.Config) *SMTPMailer {
	return &SMTPMailer{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		user:     cfg.SMTP.User,
		password: cfg.SMTP.Password,
		from:     cfg.SMTP.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.host == "" || m.user == "" || m.password == "" {
		return fmt.Errorf("smtp credentials not fully configured")
	}

	auth := smtp.PlainAuth("", m.user, m.password, m.host)

	msg := []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
		"\r\n"+
		"%s\r\n", m.from, to, subject, html))

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewSMTPMailer),
	fx.Provide(func(m *SMTPMailer) Mailer { return m }),
)
