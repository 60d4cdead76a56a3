package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
	"github.com/ansa-jobboard/jobboard/internal/services/applications/domain"
)

var (
	testConfig = Config{Issuer: "jobboard-test", Secret: "0123456789abcdef0123456789abcdef", Leeway: 0}
	issuedAt   = time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)
)

func fixedNow(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer, err := NewIssuer(testConfig, fixedNow(issuedAt))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewVerifier(testConfig, fixedNow(issuedAt.Add(time.Minute)))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := issuer.Issue(domain.Actor{UserID: "employer-e", Role: domain.RoleEmployer}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	actor, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != "employer-e" || actor.Role != domain.RoleEmployer {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestVerifyRejects(t *testing.T) {
	issuer, err := NewIssuer(testConfig, fixedNow(issuedAt))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	valid, err := issuer.Issue(domain.Actor{UserID: "seeker-s", Role: domain.RoleJobseeker}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherIssuer, err := NewIssuer(Config{Issuer: "someone-else", Secret: testConfig.Secret}, fixedNow(issuedAt))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	wrongIssuer, err := otherIssuer.Issue(domain.Actor{UserID: "seeker-s", Role: domain.RoleJobseeker}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	noExp := signRaw(t, jwt.MapClaims{"sub": "seeker-s", "role": "jobseeker", "iss": testConfig.Issuer})
	badRole := signRaw(t, jwt.MapClaims{"sub": "seeker-s", "role": "wizard", "iss": testConfig.Issuer, "exp": issuedAt.Add(time.Hour).Unix()})
	noSubject := signRaw(t, jwt.MapClaims{"role": "admin", "iss": testConfig.Issuer, "exp": issuedAt.Add(time.Hour).Unix()})

	tests := []struct {
		name  string
		token string
		now   time.Time
	}{
		{name: "empty", token: " ", now: issuedAt},
		{name: "garbage", token: "not-a-jwt", now: issuedAt},
		{name: "expired", token: valid, now: issuedAt.Add(2 * time.Hour)},
		{name: "tampered", token: valid + "x", now: issuedAt},
		{name: "wrong issuer", token: wrongIssuer, now: issuedAt},
		{name: "missing exp", token: noExp, now: issuedAt},
		{name: "unknown role", token: badRole, now: issuedAt},
		{name: "missing subject", token: noSubject, now: issuedAt},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verifier, err := NewVerifier(testConfig, fixedNow(tc.now))
			if err != nil {
				t.Fatalf("new verifier: %v", err)
			}
			_, err = verifier.Verify(tc.token)
			if got := apperrors.CodeOf(err); got != apperrors.CodeUnauthenticated {
				t.Fatalf("code = %q, want %q (err %v)", got, apperrors.CodeUnauthenticated, err)
			}
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "admin-1", "role": "admin", "iss": testConfig.Issuer, "exp": issuedAt.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testConfig.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, err := NewVerifier(testConfig, fixedNow(issuedAt))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := verifier.Verify(signed); apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Issuer: "x", Secret: "short"}).Validate(); err == nil {
		t.Fatal("expected error for short secret")
	}
	if err := (Config{Secret: testConfig.Secret}).Validate(); err == nil {
		t.Fatal("expected error for missing issuer")
	}
}

func TestIssueValidatesActor(t *testing.T) {
	issuer, err := NewIssuer(testConfig, nil)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	if _, err := issuer.Issue(domain.Actor{Role: domain.RoleAdmin}, time.Hour); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, err := issuer.Issue(domain.Actor{UserID: "u", Role: "wizard"}, time.Hour); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := issuer.Issue(domain.Actor{UserID: "u", Role: domain.RoleAdmin}, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func signRaw(t *testing.T, mapClaims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString([]byte(testConfig.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}
