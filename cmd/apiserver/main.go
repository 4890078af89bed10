// Command apiserver starts the multi-shard HTTP/1.1 API server runtime,
// the Go equivalent of main.cpp's server instantiation.
package main

import (
	"log/slog"
	"os"

	"github.com/cppservergit/apiserver2/config"
	"github.com/cppservergit/apiserver2/internal/catalog"
	"github.com/cppservergit/apiserver2/server"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	sup, err := server.New(cfg, log, registerAppEndpoints)
	if err != nil {
		log.Error("failed to build supervisor", "error", err)
		os.Exit(1)
	}

	if err := sup.Run(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// registerAppEndpoints adds any application-specific endpoints beyond the
// four built-ins the supervisor always registers. Left empty here: this
// binary ships the runtime itself, not a specific application; an
// embedding program registers its own routes the same way by calling
// server.New with its own function in place of this one.
func registerAppEndpoints(cat *catalog.Catalog) {
	_ = cat
}
