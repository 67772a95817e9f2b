package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server the sale API listens on. Request bodies are
// small JSON documents, so the read and write timeouts are short; the idle
// timeout is generous because phase boundaries bring bursts of purchase and
// punch traffic over kept-alive connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
