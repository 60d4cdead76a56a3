package devtoken

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ansa-jobboard/jobboard/internal/services/applications/auth"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	t.Setenv("JOBBOARD_AUTH_SECRET", testSecret)

	cfg, err := ParseConfig(fs, []string{"-user", "employer-e", "-role", "employer"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Auth.Secret != testSecret {
		t.Fatalf("secret = %q, want env value", cfg.Auth.Secret)
	}
	if cfg.Auth.Issuer != "jobboard" {
		t.Fatalf("issuer = %q, want jobboard", cfg.Auth.Issuer)
	}
	if cfg.UserID != "employer-e" || cfg.Role != "employer" {
		t.Fatalf("user/role = %q/%q, want employer-e/employer", cfg.UserID, cfg.Role)
	}
	if cfg.TTL != 24*time.Hour {
		t.Fatalf("ttl = %v, want 24h", cfg.TTL)
	}
}

func TestRunMintsVerifiableToken(t *testing.T) {
	now := func() time.Time { return time.Now() }
	cfg := Config{
		Auth:   auth.Config{Issuer: "jobboard", Secret: testSecret, Leeway: time.Second},
		UserID: "seeker-s",
		Role:   "jobseeker",
		TTL:    time.Hour,
	}
	buf := &bytes.Buffer{}
	if err := Run(cfg, buf, nil, now); err != nil {
		t.Fatalf("run: %v", err)
	}

	verifier, err := auth.NewVerifier(cfg.Auth, now)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	actor, err := verifier.Verify(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != "seeker-s" || actor.Role != domain.RoleJobseeker {
		t.Fatalf("actor = %+v, want seeker-s jobseeker", actor)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	base := Config{
		Auth:   auth.Config{Issuer: "jobboard", Secret: testSecret},
		UserID: "u1",
		Role:   "admin",
		TTL:    time.Hour,
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing user", mutate: func(c *Config) { c.UserID = " " }},
		{name: "unknown role", mutate: func(c *Config) { c.Role = "recruiter" }},
		{name: "short secret", mutate: func(c *Config) { c.Auth.Secret = "short" }},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := Run(cfg, &bytes.Buffer{}, nil, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{SecretBytes: 16}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunWritesSecret(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))
	if err := Run(Config{SecretBytes: 16}, buf, reader, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "JOBBOARD_AUTH_SECRET=" + strings.Repeat("ab", 16)
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestRunSecretTooShort(t *testing.T) {
	if err := Run(Config{SecretBytes: 8}, &bytes.Buffer{}, nil, nil); err == nil {
		t.Fatal("expected error for short secret")
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestRunReaderError(t *testing.T) {
	if err := Run(Config{SecretBytes: 16}, &bytes.Buffer{}, errReader{}, nil); err == nil {
		t.Fatal("expected error from failing reader")
	}
}
