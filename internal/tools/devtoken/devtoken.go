// Package devtoken mints development bearer tokens and signing secrets.
package devtoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/ansa-jobboard/jobboard/internal/platform/cmd"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/auth"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

// Config holds configuration for token minting.
type Config struct {
	Auth   auth.Config
	UserID string
	Role   string
	TTL    time.Duration
	// SecretBytes, when positive, prints a fresh signing secret instead of a token.
	SecretBytes int
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Role: string(domain.RoleJobseeker), TTL: 24 * time.Hour}
	if err := entrypoint.ParseConfig(&cfg.Auth); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id placed in the token subject")
	fs.StringVar(&cfg.Role, "role", cfg.Role, "role claim (admin, employer, jobseeker)")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	fs.StringVar(&cfg.Auth.Secret, "secret", cfg.Auth.Secret, "signing secret (default: JOBBOARD_AUTH_SECRET)")
	fs.IntVar(&cfg.SecretBytes, "new-secret", 0, "print a random signing secret of this many bytes and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes a signed token, or a new secret, to out.
func Run(cfg Config, out io.Writer, reader io.Reader, now func() time.Time) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.SecretBytes > 0 {
		return writeSecret(cfg.SecretBytes, out, reader)
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return errors.New("user id is required (-user)")
	}
	role, err := domain.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(cfg.Auth, now)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(domain.Actor{UserID: strings.TrimSpace(cfg.UserID), Role: role}, cfg.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func writeSecret(size int, out io.Writer, reader io.Reader) error {
	if size < 16 {
		return errors.New("secret must be at least 16 bytes")
	}
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	_, err := fmt.Fprintf(out, "JOBBOARD_AUTH_SECRET=%s\n", hex.EncodeToString(buf))
	return err
}
