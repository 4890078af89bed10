package security

import (
	"testing"
	"time"
)

func TestSignAndIsValid(t *testing.T) {
	svc := NewService("test-secret", time.Hour, time.Minute)
	token, err := svc.Sign(Claims{"user": "alice"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := svc.IsValid(token)
	if err != nil {
		t.Fatalf("is_valid: %v", err)
	}
	if claims["user"] != "alice" {
		t.Fatalf("user = %q", claims["user"])
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewService("test-secret", -time.Hour, time.Minute)
	token, err := svc.Sign(Claims{"user": "alice"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.IsValid(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	svc := NewService("secret-a", time.Hour, time.Minute)
	other := NewService("secret-b", time.Hour, time.Minute)
	token, _ := svc.Sign(Claims{"user": "alice"})
	if _, err := other.IsValid(token); err == nil {
		t.Fatalf("expected signature validation failure")
	}
}

func TestPostAuthClaimsAllowList(t *testing.T) {
	claims := Claims{
		"user": "alice", "email": "a@example.com", "roles": "admin",
		"sessionId": "s1", "preauth": "true", "extra": "drop-me",
	}
	post := PostAuthClaims(claims)
	if len(post) != 4 {
		t.Fatalf("expected 4 allow-listed claims, got %d: %v", len(post), post)
	}
	if _, ok := post["preauth"]; ok {
		t.Fatalf("preauth must not survive into a post-auth token")
	}
	if _, ok := post["extra"]; ok {
		t.Fatalf("unlisted claim must not survive into a post-auth token")
	}
}

func TestSignPreAuthSetsPreauthClaim(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	token, err := svc.SignPreAuth(Claims{"user": "alice"})
	if err != nil {
		t.Fatalf("sign preauth: %v", err)
	}
	claims, err := svc.IsValid(token)
	if err != nil {
		t.Fatalf("is_valid: %v", err)
	}
	if claims["preauth"] != "true" {
		t.Fatalf("expected preauth=true, got %q", claims["preauth"])
	}
}
