// Package server is the HTTP frontdoor: a thin chi surface over the
// gateway facade plus a generic CORS relay for browser callers.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/winkai/studio-gateway/internal/gateway"
)

const requestTimeout = 5 * time.Minute

// Server serves the gateway's HTTP API.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New builds the router. relayUpstream may be empty, which disables the
// relay routes.
func New(port int, gw *gateway.Gateway, relayUpstream string, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(logger))
	r.Use(Timeout(requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "studio-gateway")
	})

	h := &handlers{gateway: gw, logger: logger}
	r.Post("/v1/chat/completions", h.chatCompletions)
	r.Get("/v1/models/{provider}", h.listModels)
	r.Get("/v1/probe/{provider}", h.probe)

	if relayUpstream != "" {
		relay, err := newRelay(relayUpstream, logger)
		if err != nil {
			logger.Error("relay disabled: bad upstream", slog.String("error", err.Error()))
		} else {
			r.Handle("/relay/*", relay)
			r.Handle("/relay", relay)
		}
	}

	return &Server{Router: r, Port: port, logger: logger}
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}
