/*
Package apiserver2 is a multi-tenant HTTP/1.1 API server runtime: an
edge-triggered I/O reactor, an incremental request parser, a fixed-size
round-robin worker pool, and a JWT-based security gate, wired together
behind an exact-match endpoint catalog.

Quick Start

Registering an application endpoint and starting the runtime:

	package main

	import (
	    "log/slog"
	    "os"

	    "github.com/cppservergit/apiserver2/config"
	    "github.com/cppservergit/apiserver2/internal/catalog"
	    "github.com/cppservergit/apiserver2/internal/httpmsg"
	    "github.com/cppservergit/apiserver2/server"
	)

	func main() {
	    cfg, err := config.Load()
	    if err != nil {
	        slog.Error("config", "error", err)
	        os.Exit(1)
	    }

	    sup, err := server.New(cfg, nil, func(cat *catalog.Catalog) {
	        cat.Register("/customer", httpmsg.MethodGet, nil, customerHandler, catalog.AuthJWT)
	    })
	    if err != nil {
	        slog.Error("supervisor", "error", err)
	        os.Exit(1)
	    }
	    sup.Run()
	}

Modules

  - internal/reactor: the I/O reactor — one edge-triggered event-loop
    shard per IO_THREADS, each owning a SO_REUSEPORT listener, a
    connection table, a worker pool and a response queue.
  - internal/httpmsg: the incremental HTTP/1.1 request parser and the
    finalized Request/Headers/multipart types.
  - internal/httpresp: serialized response buffer construction.
  - internal/catalog: the frozen, exact-match endpoint lookup table.
  - internal/workerpool: the fixed-size, round-robin (no work-stealing)
    dispatch fabric.
  - internal/queue: the bounded FIFO backing both worker queues and the
    response return queue.
  - internal/security: JWT signing/validation and the two-state
    preauth/full-auth model.
  - internal/cors: exact-origin allow-list checking.
  - internal/validate: declarative per-parameter request validation.
  - internal/metrics: the /metrics and /metricsp counters.
  - internal/buffer: the growable, pooled socket-read buffer.
  - config: environment-driven configuration, including .enc secret
    decryption.
  - server: the supervisor wiring every collaborator together and
    starting the reactor shards.
*/
package apiserver2
