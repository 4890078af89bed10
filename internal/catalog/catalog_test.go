package catalog

import (
	"testing"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
)

func TestFindExactMatch(t *testing.T) {
	c := New()
	c.Register("/orders", httpmsg.MethodGet, nil, func(*httpmsg.Request, Claims) (*Outcome, error) {
		return JSON(200, []byte("{}")), nil
	}, AuthNone)
	c.Start()

	e, ok := c.Find("/orders")
	if !ok {
		t.Fatalf("expected /orders to be found")
	}
	if e.MethodMismatch(httpmsg.MethodPost) != true {
		t.Fatalf("expected POST to mismatch a GET-only endpoint")
	}
}

func TestFindMissingReturnsNotOK(t *testing.T) {
	c := New()
	c.Start()
	if _, ok := c.Find("/unknown"); ok {
		t.Fatalf("expected /unknown to be absent")
	}
}

func TestRegisterAfterStartPanics(t *testing.T) {
	c := New()
	c.Start()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Register after Start to panic")
		}
	}()
	c.Register("/late", httpmsg.MethodGet, nil, nil, AuthNone)
}

func TestNoWildcardMatching(t *testing.T) {
	c := New()
	c.Register("/orders/active", httpmsg.MethodGet, nil, nil, AuthNone)
	c.Start()

	if _, ok := c.Find("/orders/123"); ok {
		t.Fatalf("catalog must not match wildcard-style paths")
	}
}

func TestRegisterInlineMarksEndpointInline(t *testing.T) {
	c := New()
	c.RegisterInline("/ping", httpmsg.MethodGet, func(*httpmsg.Request, Claims) (*Outcome, error) {
		return JSON(200, []byte(`{"status":"OK"}`)), nil
	}, AuthNone)
	c.Start()

	e, ok := c.Find("/ping")
	if !ok || !e.Inline {
		t.Fatalf("expected /ping to be a found inline endpoint")
	}
}
