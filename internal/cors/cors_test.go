package cors

import "testing"

func TestNoOriginHeaderAlwaysAllowed(t *testing.T) {
	a := New([]string{"https://allowed.example"})
	if !a.Check("", false) {
		t.Fatalf("request without Origin header should always pass")
	}
}

func TestExactMatchAllowed(t *testing.T) {
	a := New([]string{"https://allowed.example"})
	if !a.Check("https://allowed.example", true) {
		t.Fatalf("exact origin match should be allowed")
	}
}

func TestCaseSensitiveMismatchRejected(t *testing.T) {
	a := New([]string{"https://allowed.example"})
	if a.Check("https://ALLOWED.example", true) {
		t.Fatalf("case-sensitive mismatch should be rejected")
	}
}

func TestUnknownOriginRejected(t *testing.T) {
	a := New([]string{"https://allowed.example"})
	if a.Check("https://evil.example", true) {
		t.Fatalf("unlisted origin should be rejected")
	}
}
