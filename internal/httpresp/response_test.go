package httpresp

import (
	"strings"
	"testing"
)

func TestSetBodyIncludesCORSAndSecurityHeaders(t *testing.T) {
	r := New("https://allowed.example")
	r.SetBody(200, []byte(`{"status":"OK"}`), "application/json; charset=utf-8")
	out := string(r.Remaining())

	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("missing status line: %q", out)
	}
	for _, want := range []string{
		"Access-Control-Allow-Origin: https://allowed.example\r\n",
		"X-Frame-Options: SAMEORIGIN\r\n",
		"Cache-Control: no-store\r\n",
		"Connection: keep-alive\r\n",
		"Content-Length: 15\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("response missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, `{"status":"OK"}`) {
		t.Fatalf("body not appended: %q", out)
	}
}

func TestSetBodyFinalizesOnce(t *testing.T) {
	r := New("")
	r.SetBody(200, []byte("a"), "text/plain")
	first := string(r.Remaining())
	r.SetBody(500, []byte("b"), "text/plain")
	if string(r.Remaining()) != first {
		t.Fatalf("second SetBody call mutated a finalized response")
	}
}

func TestSetOptionsPreflight(t *testing.T) {
	r := New("https://allowed.example")
	r.SetOptions()
	out := string(r.Remaining())
	if !strings.HasPrefix(out, "HTTP/1.1 204 No Content\r\n") {
		t.Fatalf("wrong status line: %q", out)
	}
	if !strings.Contains(out, "Access-Control-Allow-Methods: POST, GET, OPTIONS\r\n") {
		t.Fatalf("missing preflight methods header")
	}
	if !strings.Contains(out, "Access-Control-Max-Age: 86400\r\n") {
		t.Fatalf("missing max-age header")
	}
}

func TestAdvanceAndDone(t *testing.T) {
	r := New("")
	r.SetBody(200, []byte("hi"), "text/plain")
	total := r.Len()
	r.Advance(total - 1)
	if r.Done() {
		t.Fatalf("should not be done with 1 byte remaining")
	}
	r.Advance(1)
	if !r.Done() {
		t.Fatalf("expected done after writing full response")
	}
}

func TestNoCORSHeaderWhenOriginEmpty(t *testing.T) {
	r := New("")
	r.SetBody(404, []byte(`{"error":"not found"}`), "application/json")
	if strings.Contains(string(r.Remaining()), "Access-Control-Allow-Origin") {
		t.Fatalf("should not echo CORS header without an accepted origin")
	}
}
