// Package api provides the HTTP surface of the gateway: the generic
// /api/{tenant}/{entity}/{id} dispatch routes plus health and metrics.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/config"
	"github.com/ajitpratap0/polystore/pkg/gateway"
	"github.com/ajitpratap0/polystore/pkg/tenant"
)

// Server is the gateway HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handlers   *Handlers
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer wires the dispatch handlers into an HTTP server.
func NewServer(cfg *config.Config, resolver *tenant.Resolver, registry *gateway.Registry, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	extract := tenant.DefaultExtractor(cfg.SentinelTenant())
	handlers := NewHandlers(resolver, registry, extract, logger)

	s := &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
		cfg:      cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	middlewares := []func(http.Handler) http.Handler{
		Recovery(s.logger),
		RequestID,
		Logging(s.logger),
	}
	if s.cfg.RateLimit.Enabled {
		middlewares = append(middlewares, RateLimit(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst))
	}
	s.router.Use(Chain(middlewares...))

	api := s.router.PathPrefix("/api").Subrouter()
	// Reserved entities are matched before the generic {entity} routes.
	api.HandleFunc("/{tenant}/_schema", s.handlers.Introspect).Methods(http.MethodGet)
	api.HandleFunc("/{tenant}/{entity}", s.handlers.List).Methods(http.MethodGet)
	api.HandleFunc("/{tenant}/{entity}", s.handlers.Create).Methods(http.MethodPost)
	api.HandleFunc("/{tenant}/{entity}/{id}", s.handlers.GetOne).Methods(http.MethodGet)
	api.HandleFunc("/{tenant}/{entity}/{id}", s.handlers.Update).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/{tenant}/{entity}/{id}", s.handlers.Delete).Methods(http.MethodDelete)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, map[string]interface{}{"status": "ok"})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
