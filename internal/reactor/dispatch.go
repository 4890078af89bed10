package reactor

import (
	"log/slog"
	"time"

	"github.com/cppservergit/apiserver2/internal/apierr"
	"github.com/cppservergit/apiserver2/internal/catalog"
	"github.com/cppservergit/apiserver2/internal/cors"
	json "github.com/goccy/go-json"

	"github.com/cppservergit/apiserver2/internal/httpmsg"
	"github.com/cppservergit/apiserver2/internal/httpresp"
	"github.com/cppservergit/apiserver2/internal/security"
	"github.com/cppservergit/apiserver2/internal/validate"
	"github.com/cppservergit/apiserver2/internal/workerpool"
)

// submitter is the slice of workerpool.Pool that dispatch needs, narrowed
// so tests can substitute a fake without spinning up real worker
// goroutines.
type submitter interface {
	Submit(task workerpool.Task) error
}

// gate is the slice of security.Gate that dispatch needs.
type gate interface {
	Authenticate(req *httpmsg.Request) (security.Claims, *apierr.Error)
	AuthenticateInternal(req *httpmsg.Request) *apierr.Error
}

// metricsRecorder is the slice of metrics.Metrics that dispatch needs to
// back /metrics' total_requests, average_processing_time_seconds and
// current_active_threads fields.
type metricsRecorder interface {
	IncrementActiveThreads()
	DecrementActiveThreads()
	RecordRequestTime(d time.Duration)
}

// dispatcher holds everything the request-processing pipeline (spec.md
// §4.I "Processing a finalized request on the I/O thread") needs, kept
// free of any fd/syscall concern so it is unit-testable on its own.
type dispatcher struct {
	catalog *catalog.Catalog
	cors    *cors.AllowList
	gate    gate
	pool    submitter
	metrics metricsRecorder
	log     *slog.Logger
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"description,omitempty"`
}

func writeAPIError(resp *httpresp.Response, apiErr *apierr.Error) {
	body, _ := json.Marshal(errorBody{Error: apiErr.Message, Description: apiErr.Description})
	resp.SetBody(apiErr.Status, body, "application/json; charset=utf-8")
}

// route runs spec.md §4.I's processing algorithm for one finalized request
// and returns either a response ready to send immediately (CORS
// rejection, preflight, inline endpoint, 404, validation/auth failure,
// 503 backpressure) or nil when the request was handed to the worker
// pool — in that case deliver is invoked exactly once, asynchronously,
// once the handler completes.
func (d *dispatcher) route(req *httpmsg.Request, deliver func(*httpresp.Response)) *httpresp.Response {
	origin, hasOrigin := req.Header("Origin")
	respOrigin := ""
	if hasOrigin {
		respOrigin = origin
	}

	if !d.cors.Check(origin, hasOrigin) {
		resp := httpresp.New("")
		writeAPIError(resp, apierr.Forbidden("Origin not allowed"))
		return resp
	}

	if req.Method == httpmsg.MethodOptions {
		resp := httpresp.New(respOrigin)
		resp.SetOptions()
		return resp
	}

	ep, ok := d.catalog.Find(req.Path)
	if !ok || ep.MethodMismatch(req.Method) {
		resp := httpresp.New(respOrigin)
		writeAPIError(resp, apierr.NotFound("Resource not found"))
		return resp
	}

	claims, apiErr := d.authenticate(ep, req)
	if apiErr != nil {
		resp := httpresp.New(respOrigin)
		writeAPIError(resp, apiErr)
		return resp
	}

	if ep.Validator != nil {
		if _, failure := ep.Validator.Validate(validate.RequestSource(req)); failure != nil {
			resp := httpresp.New(respOrigin)
			writeAPIError(resp, failure.AsAPIError())
			return resp
		}
	}

	if ep.Inline {
		resp := httpresp.New(respOrigin)
		d.runHandler(ep, req, claims, resp)
		return resp
	}

	err := d.pool.Submit(func() {
		resp := httpresp.New(respOrigin)
		d.runHandler(ep, req, claims, resp)
		deliver(resp)
	})
	if err != nil {
		resp := httpresp.New(respOrigin)
		writeAPIError(resp, apierr.ServiceUnavailable("Server busy, please retry"))
		return resp
	}
	return nil
}

func (d *dispatcher) authenticate(ep *catalog.Endpoint, req *httpmsg.Request) (catalog.Claims, *apierr.Error) {
	switch ep.Auth {
	case catalog.AuthNone:
		return nil, nil
	case catalog.AuthInternalKey:
		if err := d.gate.AuthenticateInternal(req); err != nil {
			return nil, err
		}
		return nil, nil
	default: // catalog.AuthJWT
		claims, err := d.gate.Authenticate(req)
		if err != nil {
			return nil, err
		}
		return catalog.Claims(claims), nil
	}
}

func (d *dispatcher) runHandler(ep *catalog.Endpoint, req *httpmsg.Request, claims catalog.Claims, resp *httpresp.Response) {
	start := time.Now()
	d.metrics.IncrementActiveThreads()
	defer func() {
		d.metrics.DecrementActiveThreads()
		d.metrics.RecordRequestTime(time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic recovered", "path", req.Path, "panic", r)
			writeAPIError(resp, apierr.New(500, "Internal Server Error"))
		}
	}()

	outcome, err := ep.Handler(req, claims)
	if err != nil {
		apiErr, ok := err.(*apierr.Error)
		if !ok {
			apiErr = apierr.Internal(err)
		}
		d.log.Error("handler error", "path", req.Path, "error", err)
		writeAPIError(resp, apiErr)
		return
	}

	if outcome.IsBlob {
		resp.SetBlob(outcome.Body, outcome.ContentType, outcome.Disposition)
		return
	}
	resp.SetBody(outcome.Status, outcome.Body, outcome.ContentType)
}
