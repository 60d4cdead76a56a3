package jobboard

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("jobboard", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Storage.SQLitePath != "data/jobboard.db" {
		t.Fatalf("db path = %q, want %q", cfg.Storage.SQLitePath, "data/jobboard.db")
	}
	if cfg.Auth.Issuer != "jobboard" {
		t.Fatalf("auth issuer = %q, want jobboard", cfg.Auth.Issuer)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("request timeout = %v, want 15s", cfg.RequestTimeout)
	}
	if len(cfg.TerminalStatuses) != 0 {
		t.Fatalf("terminal statuses = %v, want none", cfg.TerminalStatuses)
	}
	if cfg.EmbeddedNotifier {
		t.Fatal("expected embedded notifier to be disabled by default")
	}
	if cfg.Mail.Transport != "log" {
		t.Fatalf("mail transport = %q, want log", cfg.Mail.Transport)
	}
}

func TestParseConfig_EnvAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("jobboard", flag.ContinueOnError)
	t.Setenv("JOBBOARD_HTTP_ADDR", ":9000")
	t.Setenv("JOBBOARD_DB_DRIVER", "postgres")
	t.Setenv("JOBBOARD_DB_DSN", "postgres://jobboard@db/jobboard")
	t.Setenv("JOBBOARD_AUTH_SECRET", "0123456789abcdef")
	t.Setenv("JOBBOARD_TERMINAL_STATUSES", "Hired,Rejected")
	t.Setenv("JOBBOARD_EMBEDDED_NOTIFIER", "true")

	cfg, err := ParseConfig(fs, []string{"-http-addr", ":9100", "-transition-rate", "0"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Fatalf("http addr = %q, want flag value %q", cfg.HTTPAddr, ":9100")
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.PostgresDSN != "postgres://jobboard@db/jobboard" {
		t.Fatalf("storage = %+v, want postgres dsn from env", cfg.Storage)
	}
	if cfg.Auth.Secret != "0123456789abcdef" {
		t.Fatalf("auth secret = %q, want env value", cfg.Auth.Secret)
	}
	if len(cfg.TerminalStatuses) != 2 || cfg.TerminalStatuses[0] != "Hired" || cfg.TerminalStatuses[1] != "Rejected" {
		t.Fatalf("terminal statuses = %v, want [Hired Rejected]", cfg.TerminalStatuses)
	}
	if cfg.TransitionRate != 0 {
		t.Fatalf("transition rate = %v, want 0", cfg.TransitionRate)
	}
	if !cfg.EmbeddedNotifier {
		t.Fatal("expected embedded notifier to be enabled")
	}
}

func TestParseConfig_RejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("jobboard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	if _, err := ParseConfig(fs, []string{"-nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
