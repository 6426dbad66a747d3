package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for the local status surface.
// The status listener binds to loopback only, so generous write timeouts are
// unnecessary; the header timeout guards against stuck local clients.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
