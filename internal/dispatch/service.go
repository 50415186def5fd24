// Package dispatch assembles the gateway from configuration: tenant
// resolver, connection registry and HTTP server, with graceful shutdown.
package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	adapterregistry "github.com/ajitpratap0/polystore/pkg/adapter/registry"
	"github.com/ajitpratap0/polystore/pkg/api"
	"github.com/ajitpratap0/polystore/pkg/config"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/gateway"
	"github.com/ajitpratap0/polystore/pkg/tenant"
)

// Service is the running gateway.
type Service struct {
	cfg      *config.Config
	resolver *tenant.Resolver
	registry *gateway.Registry
	server   *api.Server
	logger   *zap.Logger
}

// New builds the gateway from configuration. Every engine the resolver can
// hand out must have a registered adapter; that is validated here so a
// misconfiguration fails at startup, not on the first request.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	resolver, err := buildResolver(cfg)
	if err != nil {
		return nil, err
	}

	if err := adapterregistry.Validate(resolver.EngineTypes()); err != nil {
		return nil, err
	}

	registry := gateway.NewRegistry(adapterregistry.GetRegistry(), gateway.Options{
		ConnectTimeout:  cfg.Registry.ConnectTimeout,
		ConnectAttempts: cfg.Registry.ConnectAttempts,
		RetryDelay:      cfg.Registry.RetryDelay,
	})

	return &Service{
		cfg:      cfg,
		resolver: resolver,
		registry: registry,
		server:   api.NewServer(cfg, resolver, registry, logger),
		logger:   logger,
	}, nil
}

func buildResolver(cfg *config.Config) (*tenant.Resolver, error) {
	opts := tenant.Options{
		BaseURIs: config.EngineURIs(),
	}

	switch cfg.Routing.Policy {
	case string(tenant.PolicyStatic):
		opts.Policy = tenant.PolicyStatic
		opts.DefaultEngine = core.EngineType(cfg.Routing.DefaultEngine)
	case string(tenant.PolicyMapping):
		routes, err := tenant.LoadRoutes(cfg.Routing.RoutesFile)
		if err != nil {
			return nil, err
		}
		opts.Policy = tenant.PolicyMapping
		opts.Routes = routes.Tenants
		opts.DefaultRoute = routes.Default
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown routing policy %q", cfg.Routing.Policy)
	}

	return tenant.New(opts)
}

// Run serves until the context is cancelled, then shuts the HTTP server
// down gracefully and drains every tenant connection.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Start()
	}()

	select {
	case err := <-errCh:
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.registry.DrainAll(drainCtx)
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}
	s.registry.DrainAll(shutdownCtx)

	return nil
}

// Registry exposes the connection registry, mainly for diagnostics.
func (s *Service) Registry() *gateway.Registry {
	return s.registry
}

// shutdownGrace is how long DrainAll may take when Run exits through a
// server error rather than a context cancellation.
const shutdownGrace = 5 * time.Second
