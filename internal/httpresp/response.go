// Package httpresp builds serialized HTTP/1.1 response byte buffers: status
// line, standard security headers, optional CORS echo, and body. One
// Response is owned by exactly one request lifecycle and finalizes at most
// once.
package httpresp

import (
	"fmt"
	"net/http"
	"time"
)

// Response accumulates a serialized HTTP/1.1 message and exposes a cursor
// so the I/O reactor can write it to a non-blocking socket in pieces.
type Response struct {
	buf       []byte
	readPos   int
	finalized bool
	origin    string // echoed as Access-Control-Allow-Origin when non-empty
}

// New creates a Response that will echo origin on Access-Control-Allow-Origin
// if origin is non-empty (the request's Origin header, once CORS-approved).
func New(origin string) *Response {
	return &Response{origin: origin}
}

func (r *Response) corsHeader() string {
	if r.origin == "" {
		return ""
	}
	return fmt.Sprintf("Access-Control-Allow-Origin: %s\r\n", r.origin)
}

// SetBody finalizes the response as a standard status+body message.
// Subsequent calls are no-ops once finalized.
func (r *Response) SetBody(status int, body []byte, contentType string) {
	if r.finalized {
		return
	}
	header := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\n"+
			"Date: %s\r\n"+
			"%s"+
			"Strict-Transport-Security: max-age=31536000; includeSubDomains\r\n"+
			"X-Frame-Options: SAMEORIGIN\r\n"+
			"X-Content-Type-Options: nosniff\r\n"+
			"Referrer-Policy: no-referrer\r\n"+
			"Cache-Control: no-store\r\n"+
			"Connection: keep-alive\r\n"+
			"Content-Type: %s\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		status, http.StatusText(status),
		time.Now().UTC().Format(http.TimeFormat),
		r.corsHeader(),
		contentType,
		len(body),
	)
	r.buf = append([]byte(header), body...)
	r.finalized = true
}

// SetOptions finalizes the response as a CORS preflight reply.
func (r *Response) SetOptions() {
	if r.finalized {
		return
	}
	r.buf = []byte(fmt.Sprintf(
		"HTTP/1.1 204 No Content\r\n"+
			"Date: %s\r\n"+
			"%s"+
			"Access-Control-Allow-Methods: POST, GET, OPTIONS\r\n"+
			"Access-Control-Allow-Headers: Content-Type, Authorization, x-api-key\r\n"+
			"Access-Control-Max-Age: 86400\r\n"+
			"Connection: keep-alive\r\n"+
			"Content-Length: 0\r\n"+
			"\r\n",
		time.Now().UTC().Format(http.TimeFormat),
		r.corsHeader(),
	))
	r.finalized = true
}

// SetBlob finalizes the response as a binary download with a
// Content-Disposition header, exposed to browser JS via
// Access-Control-Expose-Headers.
func (r *Response) SetBlob(blob []byte, contentType, disposition string) {
	if r.finalized {
		return
	}
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Date: %s\r\n"+
			"%s"+
			"Access-Control-Expose-Headers: Content-Disposition\r\n"+
			"Strict-Transport-Security: max-age=31536000; includeSubDomains\r\n"+
			"X-Frame-Options: SAMEORIGIN\r\n"+
			"X-Content-Type-Options: nosniff\r\n"+
			"Referrer-Policy: no-referrer\r\n"+
			"Cache-Control: no-store\r\n"+
			"Connection: keep-alive\r\n"+
			"Content-Type: %s\r\n"+
			"Content-Disposition: %s\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		time.Now().UTC().Format(http.TimeFormat),
		r.corsHeader(),
		contentType,
		disposition,
		len(blob),
	)
	r.buf = append([]byte(header), blob...)
	r.finalized = true
}

// Remaining returns the unwritten suffix of the serialized response.
func (r *Response) Remaining() []byte {
	if r.readPos >= len(r.buf) {
		return nil
	}
	return r.buf[r.readPos:]
}

// Advance commits n bytes as written to the socket.
func (r *Response) Advance(n int) {
	r.readPos += n
}

// Done reports whether the entire response has been written.
func (r *Response) Done() bool {
	return r.readPos >= len(r.buf)
}

// Finalized reports whether one of the SetXxx methods has been called.
func (r *Response) Finalized() bool {
	return r.finalized
}

// Len returns the total serialized size.
func (r *Response) Len() int {
	return len(r.buf)
}
