package validate

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
)

// requestSource adapts a parsed Request to ParamSource: query/form
// parameters are checked first, the JSON payload second, per spec.md
// §4.L's "fetch the parameter by name from query/form map first, JSON
// payload second."
type requestSource struct {
	req  *httpmsg.Request
	json map[string]any // lazily decoded
	done bool
}

// RequestSource wraps a parsed Request as a ParamSource for Validator.Validate.
func RequestSource(req *httpmsg.Request) ParamSource {
	return &requestSource{req: req}
}

func (s *requestSource) Lookup(name string) (string, bool) {
	if v, ok := s.req.Params.Get(name); ok {
		return v, true
	}
	s.ensureJSON()
	if s.json == nil {
		return "", false
	}
	v, ok := s.json[name]
	if !ok {
		return "", false
	}
	return stringify(v), true
}

func (s *requestSource) ensureJSON() {
	if s.done {
		return
	}
	s.done = true
	if len(s.req.JSON) == 0 {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(s.req.JSON, &m); err == nil {
		s.json = m
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconvFloat(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func strconvFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
