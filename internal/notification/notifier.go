// Package notification implements the alert engine's one concrete
// notification transport: email delivery over SMTP. It exists as a
// single consumer wired onto the alert callback seam, not a general
// notification framework.
package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"netsentry/internal/alert"
	"netsentry/internal/config"
)

// EmailNotifier sends one email per alert firing to the configured
// recipients.
type EmailNotifier struct {
	host, from, to string
	port           uint16
	auth           smtp.Auth
}

// NewEmailNotifier builds an EmailNotifier from the SMTP settings in cfg.
func NewEmailNotifier(cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: cfg.SMTPFrom,
		to:   cfg.SMTPTo,
		auth: smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost),
	}
}

// Notify sends fired as an email.
func (n *EmailNotifier) Notify(fired alert.Alert) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	recipients := strings.Split(n.to, ",")

	msg := []byte("To: " + n.to + "\r\n" +
		"From: " + n.from + "\r\n" +
		"Subject: netsentry alert: " + fired.Name + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		fired.Message())

	if err := smtp.SendMail(addr, n.auth, n.from, recipients, msg); err != nil {
		return fmt.Errorf("notification: send email for alert %q: %w", fired.Name, err)
	}
	return nil
}
