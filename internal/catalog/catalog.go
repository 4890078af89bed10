// Package catalog implements the endpoint catalog: an exact-match,
// path-keyed lookup table populated once at startup and frozen before the
// reactor starts serving traffic. This deliberately replaces the teacher's
// radix-tree router — spec.md forbids wildcards and parameterized paths,
// requiring O(1) exact path match instead, mirroring api_router.hpp's
// unordered_map<string_view, api_endpoint>.
package catalog

import (
	"fmt"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
	"github.com/cppservergit/apiserver2/internal/validate"
)

// Claims carries the decoded JWT claims of an already-validated bearer
// token, made available to secure handlers for user identity.
type Claims map[string]string

// Handler executes a registered endpoint and produces an Outcome.
// Collaborator errors (SQL, outbound REST, JSON) should be returned as a
// plain error; the dispatch boundary translates unknown errors to 500.
type Handler func(req *httpmsg.Request, claims Claims) (*Outcome, error)

// Outcome is what a Handler hands back to the response builder.
type Outcome struct {
	Status      int
	Body        []byte
	ContentType string

	IsBlob      bool
	Disposition string
}

// JSON builds a standard JSON outcome.
func JSON(status int, body []byte) *Outcome {
	return &Outcome{Status: status, Body: body, ContentType: "application/json; charset=utf-8"}
}

// Blob builds a binary-download outcome.
func Blob(body []byte, contentType, disposition string) *Outcome {
	return &Outcome{Status: 200, Body: body, ContentType: contentType, IsBlob: true, Disposition: disposition}
}

// AuthMode selects which collaborator the security gate consults before a
// handler runs.
type AuthMode int

const (
	// AuthNone requires no credential — /ping, and any endpoint an
	// operator deliberately registers open.
	AuthNone AuthMode = iota
	// AuthJWT requires a signed bearer token validated by the security
	// gate's preauth/MFA-path algorithm (spec.md §4.G steps 1-5).
	AuthJWT
	// AuthInternalKey requires the static API_KEY bearer credential used
	// by the built-in /metrics, /metricsp and /version endpoints.
	AuthInternalKey
)

// Endpoint is a registered {path, method, validator, handler, secure} tuple.
// Inline marks built-in endpoints (§4.K) that the reactor serves directly
// on the I/O thread instead of dispatching to a worker pool.
type Endpoint struct {
	Path      string
	Method    httpmsg.Method
	Validator *validate.Validator
	Handler   Handler
	Auth      AuthMode
	Inline    bool
}

// Secure reports whether this endpoint requires any credential at all,
// kept as a convenience for call sites that only care about open-vs-gated.
func (e *Endpoint) Secure() bool {
	return e.Auth != AuthNone
}

// Catalog is the exact-match path→Endpoint lookup table. Safe for
// concurrent reads once Start has been called; Register after Start panics.
type Catalog struct {
	routes  map[string]*Endpoint
	started bool
}

// New creates an empty, still-mutable Catalog.
func New() *Catalog {
	return &Catalog{routes: make(map[string]*Endpoint)}
}

// Register adds an endpoint. Panics if called after Start — route
// registration after startup is a programming error, not a runtime
// condition, per spec.md §9 ("freeze at start(); any further mutation is a
// programming error").
func (c *Catalog) Register(path string, method httpmsg.Method, v *validate.Validator, h Handler, auth AuthMode) {
	if c.started {
		panic(fmt.Sprintf("catalog: Register(%q) called after Start", path))
	}
	c.routes[path] = &Endpoint{Path: path, Method: method, Validator: v, Handler: h, Auth: auth}
}

// RegisterInline adds a built-in endpoint (§4.K) served directly on the I/O
// thread rather than dispatched to a worker pool.
func (c *Catalog) RegisterInline(path string, method httpmsg.Method, h Handler, auth AuthMode) {
	if c.started {
		panic(fmt.Sprintf("catalog: RegisterInline(%q) called after Start", path))
	}
	c.routes[path] = &Endpoint{Path: path, Method: method, Handler: h, Auth: auth, Inline: true}
}

// Start freezes the catalog against further registration.
func (c *Catalog) Start() {
	c.started = true
}

// Find looks up an endpoint by exact path. Returns ok=false if absent,
// which the reactor translates into a 404.
func (c *Catalog) Find(path string) (*Endpoint, bool) {
	e, ok := c.routes[path]
	return e, ok
}

// MethodMismatch reports whether a found endpoint rejects the request's
// method; this still surfaces as a 404 per spec.md, which only describes a
// single lookup outcome (found/absent) rather than a distinct 405 status.
func (e *Endpoint) MethodMismatch(m httpmsg.Method) bool {
	return e.Method != m
}
