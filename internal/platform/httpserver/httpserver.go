// Package httpserver builds the engine's *http.Server.
package httpserver

import (
	"net/http"
	"time"

	"creditengine/internal/platform/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	minIdleTimeout    = 2 * time.Minute
)

// New builds the HTTP server from server configuration. Zero timeouts stay
// zero, which net/http treats as unbounded.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       max(minIdleTimeout, cfg.ReadTimeout),
	}
}
