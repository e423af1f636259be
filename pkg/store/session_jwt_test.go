package store

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func newHSStore(t *testing.T, secret string, ttl time.Duration, revoker TokenRevoker) *JWTSessionStore {
	t.Helper()
	s, err := NewHS256SessionStore(secret, ttl, revoker, JWTOptions{Leeway: time.Second})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func signClaims(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign claims: %v", err)
	}
	return token
}

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s := newHSStore(t, "test-secret", time.Minute, nil)
	token, err := s.NewSession("007")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("verify token: ok=%v err=%v", ok, err)
	}
	if uid != "007" {
		t.Fatalf("expected subject 007, got %q", uid)
	}
}

func TestJWTSessionStoreRejectsWrongKey(t *testing.T) {
	signer := newHSStore(t, "secret-a", time.Minute, nil)
	verifier := newHSStore(t, "secret-b", time.Minute, nil)
	token, err := signer.NewSession("001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := verifier.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected signature mismatch to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRejectsMalformedToken(t *testing.T) {
	s := newHSStore(t, "test-secret", time.Minute, nil)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
			t.Fatalf("expected malformed token %q to fail, ok=%v err=%v", token, ok, err)
		}
	}
}

// A token issued with a 30-minute TTL must still verify one minute before
// expiry and must fail one minute after.
func TestJWTSessionStoreExpiryWindow(t *testing.T) {
	const secret = "test-secret"
	s := newHSStore(t, secret, DefaultSessionTTL, nil)
	issuedAt := time.Now().UTC().Add(-29 * time.Minute)

	claims := jwt.RegisteredClaims{
		Subject:   "001",
		Issuer:    defaultJWTIssuer,
		Audience:  jwt.ClaimStrings{defaultJWTAudience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(DefaultSessionTTL)),
		ID:        "jti-fresh",
	}
	stillValid := signClaims(t, secret, claims)
	if _, ok, err := s.GetUserIDByToken(stillValid); err != nil || !ok {
		t.Fatalf("expected token at T+29m to verify, ok=%v err=%v", ok, err)
	}

	issuedAt = time.Now().UTC().Add(-31 * time.Minute)
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.NotBefore = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(DefaultSessionTTL))
	claims.ID = "jti-stale"
	expired := signClaims(t, secret, claims)
	if _, ok, err := s.GetUserIDByToken(expired); err == nil || ok {
		t.Fatalf("expected token at T+31m to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	signing, err := NewHS256SessionStore("shared", time.Minute, nil, JWTOptions{Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new signing store: %v", err)
	}
	verify, err := NewHS256SessionStore("shared", time.Minute, nil, JWTOptions{Audience: "aud-b"})
	if err != nil {
		t.Fatalf("new verify store: %v", err)
	}
	token, err := signing.NewSession("001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s := newHSStore(t, "test-secret", time.Minute, revoker)
	token, err := s.NewSession("002")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreWithoutRevokerIgnoresLogout(t *testing.T) {
	s := newHSStore(t, "test-secret", time.Minute, nil)
	token, err := s.NewSession("003")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || !ok {
		t.Fatalf("token should remain valid without a revoker, ok=%v err=%v", ok, err)
	}
}
