package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/notifier/domain"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
}

// NewSMTPMailer creates an SMTP mailer from cfg.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	addr := strings.TrimSpace(cfg.SMTPAddr)
	if addr == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse smtp address: %w", err)
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = DefaultFrom
	}
	if _, err := netmail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}
	var auth smtp.Auth
	if strings.TrimSpace(cfg.Username) != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPMailer{addr: addr, from: from, auth: auth, send: smtp.SendMail, now: time.Now}, nil
}

// Send delivers msg. Rejections of the recipient are permanent; everything
// else is left retryable.
func (m *SMTPMailer) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := netmail.ParseAddress(msg.To); err != nil {
		return domain.Permanent(fmt.Errorf("invalid recipient %q: %w", msg.To, err))
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(m.addr, m.auth, m.from, []string{msg.To}, m.compose(msg))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code >= 500 {
			return domain.Permanent(fmt.Errorf("smtp rejected message: %w", err))
		}
		return fmt.Errorf("smtp send: %w", err)
	}
}

func (m *SMTPMailer) compose(msg domain.Message) []byte {
	var buf bytes.Buffer
	header := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}
	header("From", m.from)
	header("To", msg.To)
	header("Subject", mimeHeader(msg.Subject))
	header("Date", m.now().UTC().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	if msg.DedupeKey != "" {
		header("X-Jobboard-Dedupe-Key", msg.DedupeKey)
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func mimeHeader(value string) string {
	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", value)
		}
	}
	return value
}
