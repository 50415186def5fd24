package tenant

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/polystore/pkg/errors"
)

// RoutesFile is the on-disk tenant -> engine mapping consumed by the mapping
// policy.
//
//	tenants:
//	  acme:
//	    engine: postgres
//	  globex:
//	    engine: mongodb
//	    uri: mongodb://admin:pw@db.globex.internal:27017/globex?authSource=admin
//	default:
//	  engine: mongodb
//
// The default block is the explicit opt-in for serving unmapped tenants;
// without it they fail with unknown_tenant.
type RoutesFile struct {
	Tenants map[string]Route `yaml:"tenants"`
	Default *Route           `yaml:"default,omitempty"`
}

// LoadRoutes reads and validates a routes file.
func LoadRoutes(path string) (*RoutesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read routes file")
	}

	var routes RoutesFile
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse routes file")
	}

	for tenantID, route := range routes.Tenants {
		if err := ValidateTenantID(tenantID); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid tenant in routes file")
		}
		if route.Engine == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"tenant %q in routes file has no engine", tenantID)
		}
	}
	if routes.Default != nil && routes.Default.Engine == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "default route has no engine")
	}

	return &routes, nil
}
