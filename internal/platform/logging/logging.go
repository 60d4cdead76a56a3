// Package logging builds the structured loggers shared by jobboard processes.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formats accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config selects log verbosity and encoding.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// New builds a logrus logger writing to stderr tagged with the service name.
func New(service string, cfg Config) (*logrus.Entry, error) {
	return NewWithWriter(os.Stderr, service, cfg)
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(w io.Writer, service string, cfg Config) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	return logger.WithField("service", service), nil
}

// Discard returns a logger that drops everything, for optional dependencies.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
