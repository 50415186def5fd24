// Package gateway owns the live adapter handles, one per tenant.
//
// Handles are created lazily on first acquire and reused by every later
// request for the same tenant until invalidated or drained. Concurrent
// acquires for one tenant collapse into a single connect; different tenants
// never contend beyond the map lock.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
	"github.com/ajitpratap0/polystore/pkg/tenant"
)

var (
	liveHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polystore_gateway_live_handles",
		Help: "Number of live tenant adapter handles.",
	})
	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polystore_gateway_connect_attempts_total",
		Help: "Adapter connect attempts by engine and outcome.",
	}, []string{"engine", "outcome"})
)

// AdapterFactory creates unconnected adapters for an engine type. Satisfied
// by the engine registry; tests substitute counting stubs.
type AdapterFactory interface {
	Create(engine core.EngineType) (core.Adapter, error)
}

// Options tunes handle construction.
type Options struct {
	// ConnectTimeout bounds one connect attempt. Connects run detached from
	// the request context: the handle outlives the request that triggered
	// its creation.
	ConnectTimeout time.Duration
	// ConnectAttempts bounds retries at the construction boundary.
	ConnectAttempts int
	// RetryDelay separates consecutive connect attempts.
	RetryDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
}

// Registry owns the tenant -> adapter handle mapping. It is the only
// process-wide mutable state of the gateway.
type Registry struct {
	factory AdapterFactory
	opts    Options

	mu      sync.RWMutex
	handles map[string]core.Adapter
	group   singleflight.Group

	logger *zap.Logger
}

// NewRegistry creates a connection registry.
func NewRegistry(factory AdapterFactory, opts Options) *Registry {
	opts.withDefaults()
	return &Registry{
		factory: factory,
		opts:    opts,
		handles: make(map[string]core.Adapter),
		logger:  logger.Get().With(zap.String("component", "connection_registry")),
	}
}

// Acquire returns the tenant's adapter handle, creating and connecting one
// on first access. Racing acquires for the same tenant share one in-flight
// connect and observe its single result.
func (r *Registry) Acquire(ctx context.Context, decision tenant.RoutingDecision) (core.Adapter, error) {
	r.mu.RLock()
	handle, ok := r.handles[decision.TenantID]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}

	v, err, _ := r.group.Do(decision.TenantID, func() (interface{}, error) {
		// A racer may have finished connecting while this caller queued.
		r.mu.RLock()
		handle, ok := r.handles[decision.TenantID]
		r.mu.RUnlock()
		if ok {
			return handle, nil
		}

		adapter, err := r.connect(decision)
		if err != nil {
			// Never cache a broken handle; the next acquire retries from
			// scratch.
			return nil, err
		}

		r.mu.Lock()
		r.handles[decision.TenantID] = adapter
		r.mu.Unlock()
		liveHandles.Inc()

		r.logger.Info("tenant handle created",
			zap.String("tenant", decision.TenantID),
			zap.String("engine", string(decision.Engine)))
		return adapter, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Adapter), nil
}

// connect constructs and connects an adapter with bounded retries. Each
// attempt runs under its own timeout, detached from any request context.
func (r *Registry) connect(decision tenant.RoutingDecision) (core.Adapter, error) {
	adapter, err := r.factory.Create(decision.Engine)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.ConnectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.ConnectTimeout)
		lastErr = adapter.Connect(ctx, decision.ConnectionString)
		cancel()

		if lastErr == nil {
			connectAttempts.WithLabelValues(string(decision.Engine), "success").Inc()
			return adapter, nil
		}

		connectAttempts.WithLabelValues(string(decision.Engine), "failure").Inc()
		r.logger.Warn("adapter connect attempt failed",
			zap.String("tenant", decision.TenantID),
			zap.String("engine", string(decision.Engine)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < r.opts.ConnectAttempts {
			time.Sleep(r.opts.RetryDelay)
		}
	}

	return nil, errors.Wrap(lastErr, errors.ErrorTypeConnection,
		"failed to connect tenant "+decision.TenantID)
}

// Invalidate drops the tenant's cached handle so the next acquire
// reconnects. Used after connection-level failures.
func (r *Registry) Invalidate(tenantID string) {
	r.mu.Lock()
	handle, ok := r.handles[tenantID]
	delete(r.handles, tenantID)
	r.mu.Unlock()

	if !ok {
		return
	}
	liveHandles.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.ConnectTimeout)
	defer cancel()
	if err := handle.Close(ctx); err != nil {
		r.logger.Warn("failed to close invalidated handle",
			zap.String("tenant", tenantID), zap.Error(err))
	}

	r.logger.Info("tenant handle invalidated", zap.String("tenant", tenantID))
}

// DrainAll closes every cached handle. Called at process shutdown.
func (r *Registry) DrainAll(ctx context.Context) {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]core.Adapter)
	r.mu.Unlock()

	for tenantID, handle := range handles {
		if err := handle.Close(ctx); err != nil {
			r.logger.Warn("failed to close handle during drain",
				zap.String("tenant", tenantID), zap.Error(err))
		}
		liveHandles.Dec()
	}

	r.logger.Info("connection registry drained", zap.Int("handles", len(handles)))
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
