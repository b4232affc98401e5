package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/acmst-college/admission-api/pkg/config"
)

// Message is one outbound notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers notification messages.
type Mailer interface {
	// IsConfigured reports whether a transport is available. Callers queue
	// instead of sending when it returns false.
	IsConfigured() bool
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers mail over plain SMTP with optional auth.
type SMTPMailer struct {
	cfg config.MailConfig
}

// NewSMTPMailer builds a mailer from config.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// IsConfigured reports whether an SMTP host is set.
func (m *SMTPMailer) IsConfigured() bool {
	return m.cfg.Host != ""
}

// Send delivers one message. The context deadline is not honoured mid-dial;
// callers treat any error as a queueable delivery failure.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp transport not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.cfg.FromAddress
	header := strings.Builder{}
	header.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.cfg.FromName, from))
	header.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	header.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	header.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	header.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, from, msg.To, []byte(header.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
