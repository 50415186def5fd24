// Package registry manages storage engine adapter registration and
// instantiation. Engine packages self-register from init, keyed by their
// core.EngineType tag; the tenant resolver's engine decision is dispatched
// through this registry rather than through per-engine branching.
package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
)

// Factory is a function that creates an unconnected adapter instance for one
// engine type.
type Factory func() core.Adapter

// Registry manages engine adapter factories keyed by engine type.
type Registry struct {
	factories map[core.EngineType]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new engine registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[core.EngineType]Factory),
		logger:    logger.Get().With(zap.String("component", "engine_registry")),
	}
}

// Register registers an adapter factory for an engine type
func (r *Registry) Register(engine core.EngineType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[engine]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("engine %s already registered", engine))
	}

	r.factories[engine] = factory
	r.logger.Info("engine adapter registered", zap.String("engine", string(engine)))
	return nil
}

// Create creates an unconnected adapter instance for the given engine type
func (r *Registry) Create(engine core.EngineType) (core.Adapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[engine]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeUnsupportedEngine,
			fmt.Sprintf("no adapter registered for engine %s", engine))
	}

	return factory(), nil
}

// Has checks if an adapter is registered for the engine type
func (r *Registry) Has(engine core.EngineType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[engine]
	return exists
}

// List returns the registered engine types
func (r *Registry) List() []core.EngineType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]core.EngineType, 0, len(r.factories))
	for engine := range r.factories {
		engines = append(engines, engine)
	}
	return engines
}

// Validate checks that every engine type in engines has a registered factory.
// Called at startup so a misconfigured routing table fails fast instead of on
// the first request for the unmapped engine.
func (r *Registry) Validate(engines []core.EngineType) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, engine := range engines {
		if _, exists := r.factories[engine]; !exists {
			return errors.New(errors.ErrorTypeUnsupportedEngine,
				fmt.Sprintf("configured engine %s has no registered adapter", engine))
		}
	}
	return nil
}

// Clear removes all registered factories (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories = make(map[core.EngineType]Factory)
}

// Global registry functions

// Register registers an adapter factory in the global registry
func Register(engine core.EngineType, factory Factory) error {
	return globalRegistry.Register(engine, factory)
}

// Create creates an adapter from the global registry
func Create(engine core.EngineType) (core.Adapter, error) {
	return globalRegistry.Create(engine)
}

// Has checks if an engine is registered in the global registry
func Has(engine core.EngineType) bool {
	return globalRegistry.Has(engine)
}

// List returns registered engines from the global registry
func List() []core.EngineType {
	return globalRegistry.List()
}

// Validate validates configured engines against the global registry
func Validate(engines []core.EngineType) error {
	return globalRegistry.Validate(engines)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
