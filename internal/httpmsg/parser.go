package httpmsg

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/cppservergit/apiserver2/internal/apierr"
	"github.com/cppservergit/apiserver2/internal/buffer"
)

const maxURILength = 2048

var crlfcrlf = []byte("\r\n\r\n")

// Parser is an incremental HTTP/1.1 request parser driven by feed() calls
// from the I/O reactor: WritableTail gives it somewhere to read socket
// bytes into, Advance commits them, EOF reports readiness, and Finalize
// produces the owning Request value. Each progressive step is idempotent
// once it has succeeded, matching request_parser's contract in the source
// this runtime is modeled on.
type Parser struct {
	buf      *buffer.Buffer
	remoteIP string

	headerEnd  int // index of the start of CRLFCRLF, -1 until found
	method     Method
	haveMethod bool

	contentLength      int
	haveContentLength  bool
	contentLengthError bool

	consumedLen int // byte offset where the finalized request ends, for pipelining
}

// NewParser creates a parser bounded by maxSize bytes for the connection
// whose peer address is remoteIP.
func NewParser(maxSize int, remoteIP string) *Parser {
	return &Parser{
		buf:       buffer.New(maxSize),
		remoteIP:  remoteIP,
		headerEnd: -1,
	}
}

// Release returns the parser's backing buffer to the shared chunk pool,
// called once the owning connection closes for good.
func (p *Parser) Release() {
	p.buf.Release()
}

// Reset prepares the parser to read the next pipelined/keep-alive request.
func (p *Parser) Reset(remoteIP string) {
	p.buf.Reset()
	p.remoteIP = remoteIP
	p.headerEnd = -1
	p.method = MethodUnknown
	p.haveMethod = false
	p.contentLength = 0
	p.haveContentLength = false
	p.contentLengthError = false
}

// WritableTail returns the buffer region the reactor should read() into.
func (p *Parser) WritableTail() []byte {
	return p.buf.WritableTail()
}

// Advance commits n bytes read from the socket and re-runs the progressive
// scan for the header terminator, method, and Content-Length.
func (p *Parser) Advance(n int) error {
	if err := p.buf.Advance(n); err != nil {
		return err
	}
	p.scan()
	return nil
}

func (p *Parser) scan() {
	view := p.buf.View()

	if p.headerEnd == -1 {
		if idx := bytes.Index(view, crlfcrlf); idx != -1 {
			p.headerEnd = idx
		} else {
			return
		}
	}

	if !p.haveMethod {
		line := view[:p.headerEnd]
		if nl := bytes.IndexByte(line, '\n'); nl != -1 {
			line = line[:nl]
		}
		token := line
		if sp := bytes.IndexByte(token, ' '); sp != -1 {
			token = token[:sp]
		}
		p.method = parseMethod(string(token))
		p.haveMethod = true
	}

	if p.method == MethodPost && !p.haveContentLength && !p.contentLengthError {
		headerBytes := view[:p.headerEnd]
		if v, ok := findHeader(headerBytes, "content-length"); ok {
			n, err := strconv.ParseUint(v, 10, strconv.IntSize)
			if err != nil {
				p.contentLengthError = true
			} else {
				p.contentLength = int(n)
				p.haveContentLength = true
			}
		}
	}
}

// Leftover returns any bytes buffered past the end of the just-finalized
// request: the start of a pipelined next request sharing the same read().
// Valid only immediately after a successful Finalize, and only until the
// next Reset or Advance call.
func (p *Parser) Leftover() []byte {
	view := p.buf.View()
	if p.consumedLen >= len(view) {
		return nil
	}
	return append([]byte(nil), view[p.consumedLen:]...)
}

// EOF reports whether enough bytes are buffered to attempt Finalize.
func (p *Parser) EOF() bool {
	if p.headerEnd == -1 {
		return false
	}
	if p.method != MethodPost {
		return true
	}
	if p.contentLengthError {
		return true // finalize will surface the parse error
	}
	if !p.haveContentLength {
		return true // finalize will surface the "missing Content-Length" error
	}
	want := p.headerEnd + 4 + p.contentLength
	return p.buf.Len() >= want
}

// findHeader does a case-insensitive scan of raw "Name: value\r\n" lines
// for the given lowercased name, trimming ASCII space/tab only.
func findHeader(headerBytes []byte, lowerName string) (string, bool) {
	for _, line := range splitLines(headerBytes) {
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := strings.ToLower(string(bytes.TrimSpace(line[:colon])))
		if name == lowerName {
			return string(trimASCIISpace(line[colon+1:])), true
		}
	}
	return "", false
}

func splitLines(b []byte) [][]byte {
	b = bytes.TrimPrefix(b, []byte("\r\n"))
	var lines [][]byte
	for len(b) > 0 {
		idx := bytes.Index(b, []byte("\r\n"))
		if idx == -1 {
			lines = append(lines, b)
			break
		}
		lines = append(lines, b[:idx])
		b = b[idx+2:]
	}
	return lines
}

func trimASCIISpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

// Finalize validates the full request structure and produces an owning
// Request. It is the authoritative parse: the progressive scan above only
// ever exists to answer EOF, never to approve a request.
func (p *Parser) Finalize() (*Request, error) {
	if p.method == MethodPost && p.haveContentLength && !p.contentLengthError {
		p.consumedLen = p.headerEnd + 4 + p.contentLength
	} else {
		p.consumedLen = p.headerEnd + 4
	}

	view := p.buf.View()
	headerSection := view[:p.headerEnd]

	lines := splitLines(headerSection)
	if len(lines) == 0 {
		return nil, apierr.BadRequest("malformed request line")
	}

	method, path, err := parseRequestLine(string(lines[0]))
	if err != nil {
		return nil, err
	}
	if method == MethodUnknown {
		return nil, apierr.BadRequest("unsupported HTTP method")
	}

	headers := make(Headers, len(lines)-1)
	sawHost := false
	for _, raw := range lines[1:] {
		if len(raw) == 0 {
			continue
		}
		colon := bytes.IndexByte(raw, ':')
		if colon == -1 {
			return nil, apierr.BadRequest("malformed header line")
		}
		name := string(bytes.TrimSpace(raw[:colon]))
		value := string(trimASCIISpace(raw[colon+1:]))

		if !httpguts.ValidHeaderFieldName(name) {
			return nil, apierr.BadRequest("invalid header name")
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, apierr.BadRequest("invalid header value")
		}

		lower := strings.ToLower(name)
		if lower == "transfer-encoding" {
			return nil, apierr.BadRequest("Transfer-Encoding is not supported")
		}
		if lower == "host" {
			if sawHost {
				return nil, apierr.BadRequest("duplicate Host header")
			}
			sawHost = true
		}
		headers.set(name, value)
	}

	req := &Request{
		Method:   method,
		Path:     path,
		Headers:  headers,
		Params:   Params{},
		RemoteIP: p.remoteIP,
	}

	if method != MethodPost {
		return req, nil
	}

	if p.contentLengthError {
		return nil, apierr.BadRequest("invalid Content-Length")
	}
	if !p.haveContentLength {
		return nil, apierr.BadRequest("missing Content-Length")
	}

	bodyStart := p.headerEnd + 4
	body := view[bodyStart : bodyStart+p.contentLength]

	if p.contentLength == 0 {
		return req, nil
	}

	contentType, _ := req.Header("Content-Type")
	req.ContentType = contentType
	mediaType, params := parseContentType(contentType)

	switch mediaType {
	case "application/json":
		req.JSON = append([]byte(nil), body...)
	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok || boundary == "" {
			return nil, apierr.BadRequest("multipart/form-data requires a boundary parameter")
		}
		parts, err := parseMultipart(body, boundary)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			if part.Filename != "" {
				req.FileParts = append(req.FileParts, FilePart{
					FieldName:   part.FieldName,
					Filename:    part.Filename,
					ContentType: part.ContentType,
					Content:     part.Content,
				})
			} else {
				req.Params[part.FieldName] = string(part.Content)
			}
		}
	default:
		return nil, apierr.BadRequest("unsupported Content-Type for request body")
	}

	return req, nil
}

func parseRequestLine(line string) (Method, string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MethodUnknown, "", apierr.BadRequest("malformed request line")
	}
	method := parseMethod(fields[0])
	uri := fields[1]

	if err := validateURI(uri); err != nil {
		return MethodUnknown, "", err
	}
	return method, uri, nil
}

func validateURI(uri string) error {
	if len(uri) == 0 || len(uri) > maxURILength {
		return apierr.BadRequest("URI exceeds maximum length")
	}
	if uri[0] != '/' {
		return apierr.BadRequest("URI must be absolute")
	}
	if strings.Contains(uri, "?") {
		return apierr.BadRequest("URI query parameters are not allowed")
	}
	if strings.Contains(uri, "..") {
		return apierr.BadRequest("URI must not contain path traversal sequences")
	}
	for _, c := range uri {
		switch {
		case c == '%' || c == '\\':
			return apierr.BadRequest("URI contains a disallowed character")
		case c == '\r' || c == '\n' || c == 0:
			return apierr.BadRequest("URI contains a control character")
		}
	}
	return nil
}

// parseContentType splits "media/type; param=value; ..." into the lowercased
// media type and a lowercased-key parameter map, trimming ASCII whitespace
// and optional surrounding quotes on values.
func parseContentType(raw string) (string, map[string]string) {
	parts := strings.Split(raw, ";")
	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	params := make(map[string]string)
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}
	return mediaType, params
}
