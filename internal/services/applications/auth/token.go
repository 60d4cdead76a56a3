// Package auth issues and verifies the bearer tokens that identify API callers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

const signingMethod = "HS256"

// Config defines how tokens are signed and checked.
type Config struct {
	Issuer string `env:"AUTH_ISSUER" envDefault:"jobboard"`
	Secret string `env:"AUTH_SECRET"`
	// Leeway tolerates clock skew on exp.
	Leeway time.Duration `env:"AUTH_LEEWAY" envDefault:"30s"`
}

// Validate reports missing settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("auth issuer is required")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("auth secret must be at least 16 bytes")
	}
	return nil
}

// claims is the token body: sub, role, iss, exp.
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates bearer tokens and yields the calling actor.
type Verifier struct {
	issuer string
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier from cfg.
func NewVerifier(cfg Config, now func() time.Time) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{issuer: cfg.Issuer, secret: []byte(cfg.Secret), leeway: cfg.Leeway, now: now}, nil
}

// Verify parses token and returns the actor it names.
func (v *Verifier) Verify(token string) (domain.Actor, error) {
	if v == nil {
		return domain.Actor{}, errors.New("token verifier is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Actor{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Actor{}, mapJWTError(err)
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return domain.Actor{}, apperrors.New(apperrors.CodeUnauthenticated, "token sub is required")
	}
	role, err := domain.ParseRole(parsed.Role)
	if err != nil {
		return domain.Actor{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "token role is invalid", err)
	}
	return domain.Actor{UserID: subject, Role: role}, nil
}

// Issuer mints tokens; it backs the development token command and tests.
type Issuer struct {
	issuer string
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an issuer from cfg.
func NewIssuer(cfg Config, now func() time.Time) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{issuer: cfg.Issuer, secret: []byte(cfg.Secret), now: now}, nil
}

// Issue signs a token for actor valid for ttl.
func (i *Issuer) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	if i == nil {
		return "", errors.New("token issuer is not configured")
	}
	if strings.TrimSpace(actor.UserID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	if _, err := domain.ParseRole(string(actor.Role)); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be greater than zero")
	}
	now := i.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token issuer mismatch", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token exp is required", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "token is invalid", err)
	}
}
