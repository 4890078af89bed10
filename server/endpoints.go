// Package server wires the catalog, security gate, CORS allow-list and
// metrics object together into a running set of reactor shards, the Go
// equivalent of server::start()'s supervisor loop.
package server

import (
	json "github.com/goccy/go-json"

	"github.com/cppservergit/apiserver2/internal/catalog"
	"github.com/cppservergit/apiserver2/internal/httpmsg"
	"github.com/cppservergit/apiserver2/internal/metrics"
)

// version is the build identifier reported by /version, mirroring
// server.cpp's g_version.
const version = "2.0.0"

// registerBuiltins adds the four inline endpoints of spec.md §4.K: /ping
// (open), and /metrics, /metricsp, /version (gated by the internal API
// key), all served synchronously on the I/O thread rather than dispatched
// to a worker pool.
func registerBuiltins(cat *catalog.Catalog, m *metrics.Metrics) {
	cat.RegisterInline("/ping", httpmsg.MethodGet, func(*httpmsg.Request, catalog.Claims) (*catalog.Outcome, error) {
		return catalog.JSON(200, []byte(`{"status":"OK"}`)), nil
	}, catalog.AuthNone)

	cat.RegisterInline("/metrics", httpmsg.MethodGet, func(*httpmsg.Request, catalog.Claims) (*catalog.Outcome, error) {
		body, err := m.ToJSON()
		if err != nil {
			return nil, err
		}
		return catalog.JSON(200, body), nil
	}, catalog.AuthInternalKey)

	cat.RegisterInline("/metricsp", httpmsg.MethodGet, func(*httpmsg.Request, catalog.Claims) (*catalog.Outcome, error) {
		body, contentType, err := m.ToPrometheus()
		if err != nil {
			return nil, err
		}
		return &catalog.Outcome{Status: 200, Body: body, ContentType: contentType}, nil
	}, catalog.AuthInternalKey)

	cat.RegisterInline("/version", httpmsg.MethodGet, func(*httpmsg.Request, catalog.Claims) (*catalog.Outcome, error) {
		body, err := json.Marshal(struct {
			PodName string `json:"pod_name"`
			Version string `json:"version"`
		}{PodName: m.PodName(), Version: version})
		if err != nil {
			return nil, err
		}
		return catalog.JSON(200, body), nil
	}, catalog.AuthInternalKey)
}
