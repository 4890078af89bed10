package httpmsg

import (
	"bytes"
	"path"
	"strings"

	"github.com/cppservergit/apiserver2/internal/apierr"
)

type multipartPart struct {
	FieldName   string
	Filename    string
	ContentType string
	Content     []byte
}

// parseMultipart splits body on "--<boundary>" delimiters and decodes each
// part's headers, mirroring process_multipart_part/parse_part_headers: a
// part without a filename becomes a form parameter, a part with a filename
// becomes a file part whose stored name is sanitized to a bare basename to
// block path traversal. Both CRLFCRLF and LFLF header terminators are
// accepted, matching both well-formed and legacy client encodings.
func parseMultipart(body []byte, boundary string) ([]multipartPart, error) {
	delimiter := append([]byte("--"), []byte(boundary)...)
	sections := bytes.Split(body, delimiter)

	var parts []multipartPart
	for _, section := range sections[1:] {
		section = bytes.TrimPrefix(section, []byte("\r\n"))
		section = bytes.TrimPrefix(section, []byte("\n"))

		trimmed := bytes.TrimLeft(section, "\r\n")
		if bytes.HasPrefix(trimmed, []byte("--")) {
			break // final boundary marker
		}
		if len(section) == 0 {
			continue
		}

		headerEnd, termLen := findPartHeaderEnd(section)
		if headerEnd == -1 {
			return nil, apierr.BadRequest("malformed multipart part: no header terminator")
		}

		headers := section[:headerEnd]
		content := section[headerEnd+termLen:]
		content = bytes.TrimSuffix(content, []byte("\r\n"))
		content = bytes.TrimSuffix(content, []byte("\n"))

		h, err := parsePartHeaders(headers)
		if err != nil {
			return nil, err
		}
		if h.fieldName == "" {
			continue // Content-Disposition without a usable name; skip
		}

		part := multipartPart{
			FieldName:   h.fieldName,
			ContentType: h.contentType,
			Content:     append([]byte(nil), content...),
		}
		if h.filename != "" {
			part.Filename = sanitizeFilename(h.filename)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// findPartHeaderEnd returns the index of the header terminator and its
// length (4 for CRLFCRLF, 2 for LFLF), or -1 if neither is present.
func findPartHeaderEnd(section []byte) (int, int) {
	if idx := bytes.Index(section, []byte("\r\n\r\n")); idx != -1 {
		return idx, 4
	}
	if idx := bytes.Index(section, []byte("\n\n")); idx != -1 {
		return idx, 2
	}
	return -1, 0
}

type partHeaders struct {
	fieldName   string
	filename    string
	contentType string
}

func parsePartHeaders(raw []byte) (partHeaders, error) {
	var h partHeaders
	for _, line := range splitLines(raw) {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := string(trimASCIISpace(line[colon+1:]))

		switch name {
		case "content-disposition":
			h.fieldName = dispositionParam(value, "name")
			h.filename = dispositionParam(value, "filename")
		case "content-type":
			h.contentType = strings.TrimSpace(value)
		}
	}
	return h, nil
}

// dispositionParam extracts a quoted-string parameter (name or filename)
// from a Content-Disposition value, respecting quoted-string semantics
// (the value may itself contain ';' once inside quotes). Matching walks
// each ';'-delimited parameter and compares its key exactly, rather than
// searching for "key=" as a raw substring, so a "filename=" parameter
// can never be mistaken for "name=" regardless of which one appears
// first in the header.
func dispositionParam(disposition, key string) string {
	for _, param := range splitDispositionParams(disposition) {
		eq := strings.IndexByte(param, '=')
		if eq == -1 {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(param[:eq]), key) {
			continue
		}
		rest := param[eq+1:]
		if len(rest) == 0 {
			return ""
		}
		if rest[0] == '"' {
			rest = rest[1:]
			if end := strings.IndexByte(rest, '"'); end != -1 {
				return rest[:end]
			}
			return rest
		}
		return strings.TrimSpace(rest)
	}
	return ""
}

// splitDispositionParams splits disposition on ';', except inside a
// quoted-string, where a literal ';' must not end the current parameter.
func splitDispositionParams(disposition string) []string {
	var params []string
	inQuotes := false
	start := 0
	for i := 0; i < len(disposition); i++ {
		switch disposition[i] {
		case '"':
			inQuotes = !inQuotes
		case ';':
			if !inQuotes {
				params = append(params, strings.TrimSpace(disposition[start:i]))
				start = i + 1
			}
		}
	}
	params = append(params, strings.TrimSpace(disposition[start:]))
	return params
}

// sanitizeFilename reduces a client-supplied filename to its basename so a
// stored file part can never escape its intended directory via "../" or an
// absolute path component.
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	return path.Base(filename)
}
