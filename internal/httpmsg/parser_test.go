package httpmsg

import (
	"strings"
	"testing"
)

func feed(t *testing.T, p *Parser, data string) {
	t.Helper()
	n := copy(p.WritableTail(), data)
	if n != len(data) {
		t.Fatalf("writable tail too small: need %d got %d", len(data), n)
	}
	if err := p.Advance(n); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func TestParseSimpleGet(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "GET /ping HTTP/1.1\r\nHost: h\r\n\r\n")
	if !p.EOF() {
		t.Fatalf("expected EOF after full GET request")
	}
	req, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if req.Method != MethodGet || req.Path != "/ping" {
		t.Fatalf("got method=%v path=%q", req.Method, req.Path)
	}
}

func TestRejectsQueryString(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "GET /products?limit=1 HTTP/1.1\r\nHost: h\r\n\r\n")
	_, err := p.Finalize()
	if err == nil || !strings.Contains(err.Error(), "query parameters") {
		t.Fatalf("expected query-string rejection, got %v", err)
	}
}

func TestRejectsTransferEncoding(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello")
	if !p.EOF() {
		t.Fatalf("expected EOF")
	}
	_, err := p.Finalize()
	if err == nil || !strings.Contains(err.Error(), "Transfer-Encoding") {
		t.Fatalf("expected Transfer-Encoding rejection, got %v", err)
	}
}

func TestPostWaitsForBody(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 11\r\nContent-Type: application/json\r\n\r\n")
	if p.EOF() {
		t.Fatalf("should not be EOF before body arrives")
	}
	feed(t, p, `{"a":"b"}12`)
	if !p.EOF() {
		t.Fatalf("expected EOF once content-length bytes are buffered")
	}
	req, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if string(req.JSON) != `{"a":"b"}12` {
		t.Fatalf("unexpected json body: %q", req.JSON)
	}
}

func TestDuplicateHostRejected(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "GET /x HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n")
	_, err := p.Finalize()
	if err == nil || !strings.Contains(err.Error(), "duplicate Host") {
		t.Fatalf("expected duplicate Host rejection, got %v", err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	feed(t, p, "GET /a/../b HTTP/1.1\r\nHost: h\r\n\r\n")
	_, err := p.Finalize()
	if err == nil {
		t.Fatalf("expected path traversal rejection")
	}
}

func TestMultipartFormData(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	boundary := "X-BOUNDARY"
	body := "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="field1"` + "\r\n\r\n" +
		"value1\r\n" +
		"--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file1"; filename="../../etc/passwd"` + "\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"filecontent\r\n" +
		"--" + boundary + "--\r\n"
	req := "POST /upload HTTP/1.1\r\nHost: h\r\nContent-Type: multipart/form-data; boundary=" + boundary + "\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body
	feed(t, p, req)
	if !p.EOF() {
		t.Fatalf("expected EOF")
	}
	parsed, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if v, _ := parsed.Params.Get("field1"); v != "value1" {
		t.Fatalf("field1 = %q", v)
	}
	fp := parsed.FileUpload("file1")
	if fp == nil {
		t.Fatalf("expected file1 part")
	}
	if fp.Filename != "passwd" {
		t.Fatalf("filename not sanitized: %q", fp.Filename)
	}
	if string(fp.Content) != "filecontent" {
		t.Fatalf("content = %q", fp.Content)
	}
}

func TestMultipartFilenameBeforeName(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	boundary := "X-BOUNDARY"
	body := "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; filename="report.csv"; name="file1"` + "\r\n" +
		"Content-Type: text/csv\r\n\r\n" +
		"a,b,c\r\n" +
		"--" + boundary + "--\r\n"
	req := "POST /upload HTTP/1.1\r\nHost: h\r\nContent-Type: multipart/form-data; boundary=" + boundary + "\r\nContent-Length: " + itoa(len(body)) + "\r\n\r\n" + body
	feed(t, p, req)
	parsed, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	fp := parsed.FileUpload("file1")
	if fp == nil {
		t.Fatalf("expected file1 part even when filename precedes name")
	}
	if fp.Filename != "report.csv" {
		t.Fatalf("filename = %q, want report.csv", fp.Filename)
	}
}

func TestLeftoverCarriesPipelinedBytes(t *testing.T) {
	p := NewParser(1<<20, "127.0.0.1")
	first := "GET /a HTTP/1.1\r\nHost: h\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: h\r\n\r\n"
	feed(t, p, first+second)
	if !p.EOF() {
		t.Fatalf("expected EOF on the first pipelined request")
	}
	req, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if req.Path != "/a" {
		t.Fatalf("path = %q, want /a", req.Path)
	}

	leftover := p.Leftover()
	if string(leftover) != second {
		t.Fatalf("leftover = %q, want %q", leftover, second)
	}

	p.Reset("127.0.0.1")
	n := copy(p.WritableTail(), leftover)
	if err := p.Advance(n); err != nil {
		t.Fatalf("advance leftover: %v", err)
	}
	if !p.EOF() {
		t.Fatalf("expected second pipelined request to already be complete")
	}
	req2, err := p.Finalize()
	if err != nil {
		t.Fatalf("finalize second: %v", err)
	}
	if req2.Path != "/b" {
		t.Fatalf("path = %q, want /b", req2.Path)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
