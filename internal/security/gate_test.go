package security

import (
	"testing"
	"time"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
)

func reqWithToken(path, token string) *httpmsg.Request {
	return &httpmsg.Request{
		Path:    path,
		Headers: httpmsg.Headers{"authorization": "Bearer " + token},
	}
}

func TestGateRejectsPreauthOnNonMFAEndpoint(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	gate := NewGate(svc, "/validate/topt", "", nil)

	token, _ := svc.SignPreAuth(Claims{"user": "alice"})
	_, err := gate.Authenticate(reqWithToken("/customer", token))
	if err == nil || err.Status != 401 {
		t.Fatalf("expected 401 for preauth token on non-MFA path, got %v", err)
	}
}

func TestGateAcceptsPreauthOnMFAEndpoint(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	gate := NewGate(svc, "/validate/topt", "", nil)

	token, _ := svc.SignPreAuth(Claims{"user": "alice"})
	claims, err := gate.Authenticate(reqWithToken("/validate/topt", token))
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if claims["user"] != "alice" {
		t.Fatalf("claims not propagated: %v", claims)
	}
}

func TestGateRejectsFullTokenOnMFAEndpoint(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	gate := NewGate(svc, "/validate/topt", "", nil)

	token, _ := svc.Sign(Claims{"user": "alice"})
	_, err := gate.Authenticate(reqWithToken("/validate/topt", token))
	if err == nil || err.Status != 401 {
		t.Fatalf("expected 401 for full token on MFA path, got %v", err)
	}
}

func TestGateAcceptsFullTokenOnSecureEndpoint(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	gate := NewGate(svc, "/validate/topt", "", nil)

	token, _ := svc.Sign(Claims{"user": "alice"})
	_, err := gate.Authenticate(reqWithToken("/customer", token))
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestGateMissingTokenRejected(t *testing.T) {
	svc := NewService("secret", time.Hour, time.Minute)
	gate := NewGate(svc, "/validate/topt", "", nil)
	_, err := gate.Authenticate(&httpmsg.Request{Path: "/customer", Headers: httpmsg.Headers{}})
	if err == nil || err.Status != 401 {
		t.Fatalf("expected 401 for missing token, got %v", err)
	}
}

func TestAuthenticateInternalDisabledWhenKeyEmpty(t *testing.T) {
	gate := NewGate(nil, "/validate/topt", "", nil)
	if err := gate.AuthenticateInternal(&httpmsg.Request{Headers: httpmsg.Headers{}}); err != nil {
		t.Fatalf("expected internal auth disabled, got %v", err)
	}
}

func TestAuthenticateInternalRejectsWrongKey(t *testing.T) {
	gate := NewGate(nil, "/validate/topt", "correct-key", nil)
	req := reqWithToken("/metrics", "wrong-key")
	if err := gate.AuthenticateInternal(req); err == nil || err.Status != 401 {
		t.Fatalf("expected 401 for wrong bearer key, got %v", err)
	}
}

func TestAuthenticateInternalAcceptsCorrectKey(t *testing.T) {
	gate := NewGate(nil, "/validate/topt", "correct-key", nil)
	req := reqWithToken("/metrics", "correct-key")
	if err := gate.AuthenticateInternal(req); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
}
