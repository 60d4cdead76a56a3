// Package mail delivers notifier email through SMTP or the process log.
package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ansa-jobboard/jobboard/internal/platform/logging"
	"github.com/ansa-jobboard/jobboard/internal/services/notifier/domain"
)

// Transports accepted by New.
const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
)

// DefaultFrom is the sender used when none is configured.
const DefaultFrom = "notifications@ansa-jobboard.com"

// Config selects and configures the mail transport.
type Config struct {
	Transport string `env:"MAIL_TRANSPORT" envDefault:"log"`
	From      string `env:"MAIL_FROM" envDefault:"notifications@ansa-jobboard.com"`
	SMTPAddr  string `env:"SMTP_ADDR"`
	Username  string `env:"SMTP_USERNAME"`
	Password  string `env:"SMTP_PASSWORD"`
}

// New returns the mailer named by cfg.Transport.
func New(cfg Config, logger logrus.FieldLogger) (domain.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportLog:
		return NewLogMailer(cfg.From, logger), nil
	case TransportSMTP:
		return NewSMTPMailer(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", cfg.Transport)
	}
}

// LogMailer writes each email to the log instead of sending it.
type LogMailer struct {
	from   string
	logger logrus.FieldLogger
}

// NewLogMailer creates a log-backed mailer.
func NewLogMailer(from string, logger logrus.FieldLogger) *LogMailer {
	if strings.TrimSpace(from) == "" {
		from = DefaultFrom
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogMailer{from: from, logger: logger}
}

// Send logs msg.
func (m *LogMailer) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.WithFields(logrus.Fields{
		"from":       m.from,
		"to":         msg.To,
		"subject":    msg.Subject,
		"dedupe_key": msg.DedupeKey,
	}).Info(msg.Body)
	return nil
}
