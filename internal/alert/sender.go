package alert

import (
	"context"
	"strings"

	mail "gopkg.in/mail.v2"
)

// SMTPConfig configures the outbound alert channel. Username is the SMTP
// auth login, which for some providers (SendGrid, Mailgun) differs from
// FromAddress; when empty, FromAddress is used for both.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	FromAddress string
	Password    string
	ToAddresses []string
}

// SMTPSender dispatches plain-text alert mail over SMTP with TLS.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *mail.Dialer
}

// NewSMTPSender constructs a Sender backed by gopkg.in/mail.v2.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	login := cfg.Username
	if login == "" {
		login = cfg.FromAddress
	}
	dialer := mail.NewDialer(cfg.Host, cfg.Port, login, cfg.Password)
	return &SMTPSender{cfg: cfg, dialer: dialer}
}

// Send composes and delivers a single alert message. ctx is accepted for
// interface symmetry with other dispatch paths; the underlying dialer does
// not support per-call cancellation.
func (s *SMTPSender) Send(_ context.Context, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.FromAddress)
	m.SetHeader("To", s.cfg.ToAddresses...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	return s.dialer.DialAndSend(m)
}

// ParseAddresses splits a comma-separated recipient list from configuration
// into a clean slice.
func ParseAddresses(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
