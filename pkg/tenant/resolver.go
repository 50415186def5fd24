// Package tenant resolves which storage engine and connection string serve a
// given tenant.
//
// Two policies exist. The static policy sends every tenant to one configured
// engine, isolating tenants by database (or key namespace) derived from the
// tenant id. The mapping policy consults a routes table keyed by tenant id;
// an unmapped tenant fails with unknown_tenant unless a default route was
// explicitly configured.
package tenant

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
)

// Policy selects how tenants map to engines.
type Policy string

const (
	// PolicyStatic routes every tenant to a single configured engine.
	PolicyStatic Policy = "static"
	// PolicyMapping routes tenants through a tenant -> engine table.
	PolicyMapping Policy = "mapping"
)

// DefaultTenant is the sentinel tenant used when a request carries no tenant
// identity and the fallback is enabled.
const DefaultTenant = "default_tenant"

// RoutingDecision is the resolver's answer for one tenant.
type RoutingDecision struct {
	TenantID         string
	Engine           core.EngineType
	ConnectionString string
}

// Route is one entry of the tenant -> engine mapping. URI, when set, is the
// complete tenant-specific connection string; otherwise it is composed from
// the engine's base URI.
type Route struct {
	Engine core.EngineType `yaml:"engine"`
	URI    string          `yaml:"uri,omitempty"`
}

// Options configures a Resolver.
type Options struct {
	Policy        Policy
	DefaultEngine core.EngineType
	Routes        map[string]Route
	DefaultRoute  *Route
	// BaseURIs holds the per-engine base connection strings, without a
	// tenant database.
	BaseURIs map[core.EngineType]string
}

// Resolver maps tenant ids to routing decisions.
type Resolver struct {
	policy        Policy
	defaultEngine core.EngineType
	routes        map[string]Route
	defaultRoute  *Route
	baseURIs      map[core.EngineType]string
	logger        *zap.Logger
}

// New creates a resolver from options.
func New(opts Options) (*Resolver, error) {
	switch opts.Policy {
	case PolicyStatic:
		if opts.DefaultEngine == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "static routing requires a default engine")
		}
	case PolicyMapping:
		if len(opts.Routes) == 0 && opts.DefaultRoute == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "mapping routing requires routes or a default route")
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown routing policy %q", opts.Policy)
	}

	return &Resolver{
		policy:        opts.Policy,
		defaultEngine: opts.DefaultEngine,
		routes:        opts.Routes,
		defaultRoute:  opts.DefaultRoute,
		baseURIs:      opts.BaseURIs,
		logger:        logger.Get().With(zap.String("component", "tenant_resolver")),
	}, nil
}

// Resolve produces the routing decision for a tenant.
func (r *Resolver) Resolve(tenantID string) (RoutingDecision, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return RoutingDecision{}, err
	}

	route, err := r.route(tenantID)
	if err != nil {
		return RoutingDecision{}, err
	}

	connectionString := route.URI
	if connectionString == "" {
		connectionString, err = r.composeURI(route.Engine, tenantID)
		if err != nil {
			return RoutingDecision{}, err
		}
	}

	return RoutingDecision{
		TenantID:         tenantID,
		Engine:           route.Engine,
		ConnectionString: connectionString,
	}, nil
}

func (r *Resolver) route(tenantID string) (Route, error) {
	if r.policy == PolicyStatic {
		return Route{Engine: r.defaultEngine}, nil
	}

	if route, ok := r.routes[tenantID]; ok {
		return route, nil
	}
	if r.defaultRoute != nil {
		r.logger.Debug("using default route for unmapped tenant", zap.String("tenant", tenantID))
		return *r.defaultRoute, nil
	}
	return Route{}, errors.Newf(errors.ErrorTypeUnknownTenant,
		"tenant %q has no routing entry", tenantID)
}

// EngineTypes returns every engine the resolver can hand out, for startup
// validation against the adapter registry.
func (r *Resolver) EngineTypes() []core.EngineType {
	seen := map[core.EngineType]bool{}
	var out []core.EngineType

	add := func(engine core.EngineType) {
		if engine != "" && !seen[engine] {
			seen[engine] = true
			out = append(out, engine)
		}
	}

	add(r.defaultEngine)
	for _, route := range r.routes {
		add(route.Engine)
	}
	if r.defaultRoute != nil {
		add(r.defaultRoute.Engine)
	}
	return out
}

// composeURI derives the tenant-specific connection string from the engine's
// base URI. MongoDB and PostgreSQL isolate tenants by database name; Redis
// by key namespace.
func (r *Resolver) composeURI(engine core.EngineType, tenantID string) (string, error) {
	base, ok := r.baseURIs[engine]
	if !ok || base == "" {
		return "", errors.Newf(errors.ErrorTypeConfig,
			"no base connection string configured for engine %s", engine)
	}
	base = strings.TrimSuffix(base, "/")

	switch engine {
	case core.EngineMongoDB:
		return fmt.Sprintf("%s/%s?authSource=admin", base, tenantID), nil
	case core.EnginePostgres:
		return fmt.Sprintf("%s/%s", base, tenantID), nil
	case core.EngineRedis:
		return fmt.Sprintf("%s#%s", base, tenantID), nil
	default:
		return "", errors.Newf(errors.ErrorTypeUnsupportedEngine,
			"no connection scheme for engine %s", engine)
	}
}

// ValidateTenantID rejects tenant ids that cannot name a database or key
// namespace.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return errors.New(errors.ErrorTypeValidation, "tenant id must not be empty")
	}
	if strings.ContainsAny(tenantID, "/\\. \t\n#:") {
		return errors.Newf(errors.ErrorTypeValidation, "tenant id %q contains invalid characters", tenantID)
	}
	return nil
}
