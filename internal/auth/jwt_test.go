package auth

import (
	"strings"
	"testing"
	"time"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

var alice = Identity{UID: "uid-alice", Email: "alice@x.com"}

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short"); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(alice, "sess-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("token doesn't look like a JWT (expected 2 dots, got %d)", n)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(alice, "sess-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	c, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.UID != alice.UID || c.Email != alice.Email || c.SessionID != "sess-1" {
		t.Errorf("Validate() = %+v, want uid %q email %q session %q", c, alice.UID, alice.Email, "sess-1")
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(alice, "sess-1", -time.Second)

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(alice, "sess-1", time.Hour)
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Generate(alice, "sess-1", time.Hour)

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_MissingSessionID(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(alice, "", time.Hour)

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should reject a token without a session id")
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Validate(""); err == nil {
		t.Fatal("Validate() should return an error for an empty string")
	}
}
