package tenant

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
)

func baseURIs() map[core.EngineType]string {
	return map[core.EngineType]string{
		core.EngineMongoDB:  "mongodb://admin:pw@localhost:27017",
		core.EnginePostgres: "postgres://postgres:pw@localhost:5432",
		core.EngineRedis:    "redis://localhost:6379/0",
	}
}

func TestStaticPolicyComposesTenantDatabase(t *testing.T) {
	r, err := New(Options{
		Policy:        PolicyStatic,
		DefaultEngine: core.EngineMongoDB,
		BaseURIs:      baseURIs(),
	})
	require.NoError(t, err)

	decision, err := r.Resolve("acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", decision.TenantID)
	assert.Equal(t, core.EngineMongoDB, decision.Engine)
	assert.Equal(t, "mongodb://admin:pw@localhost:27017/acme?authSource=admin", decision.ConnectionString)
}

func TestStaticPolicyPerEngineSchemes(t *testing.T) {
	tests := []struct {
		engine core.EngineType
		want   string
	}{
		{core.EnginePostgres, "postgres://postgres:pw@localhost:5432/acme"},
		{core.EngineRedis, "redis://localhost:6379/0#acme"},
	}

	for _, tt := range tests {
		t.Run(string(tt.engine), func(t *testing.T) {
			r, err := New(Options{Policy: PolicyStatic, DefaultEngine: tt.engine, BaseURIs: baseURIs()})
			require.NoError(t, err)

			decision, err := r.Resolve("acme")
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision.ConnectionString)
		})
	}
}

func TestMappingPolicyRoutesPerTenant(t *testing.T) {
	r, err := New(Options{
		Policy: PolicyMapping,
		Routes: map[string]Route{
			"acme":   {Engine: core.EnginePostgres},
			"globex": {Engine: core.EngineMongoDB, URI: "mongodb://db.globex.internal:27017/globex"},
		},
		BaseURIs: baseURIs(),
	})
	require.NoError(t, err)

	acme, err := r.Resolve("acme")
	require.NoError(t, err)
	assert.Equal(t, core.EnginePostgres, acme.Engine)

	// A tenant-specific URI wins over composition.
	globex, err := r.Resolve("globex")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.globex.internal:27017/globex", globex.ConnectionString)
}

func TestMappingPolicyUnknownTenant(t *testing.T) {
	r, err := New(Options{
		Policy:   PolicyMapping,
		Routes:   map[string]Route{"acme": {Engine: core.EnginePostgres}},
		BaseURIs: baseURIs(),
	})
	require.NoError(t, err)

	_, err = r.Resolve("stranger")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownTenant))
}

func TestMappingPolicyDefaultRouteOptIn(t *testing.T) {
	r, err := New(Options{
		Policy:       PolicyMapping,
		Routes:       map[string]Route{"acme": {Engine: core.EnginePostgres}},
		DefaultRoute: &Route{Engine: core.EngineMongoDB},
		BaseURIs:     baseURIs(),
	})
	require.NoError(t, err)

	decision, err := r.Resolve("stranger")
	require.NoError(t, err)
	assert.Equal(t, core.EngineMongoDB, decision.Engine)
	assert.Equal(t, "mongodb://admin:pw@localhost:27017/stranger?authSource=admin", decision.ConnectionString)
}

func TestResolveMissingBaseURI(t *testing.T) {
	r, err := New(Options{Policy: PolicyStatic, DefaultEngine: core.EngineMongoDB})
	require.NoError(t, err)

	_, err = r.Resolve("acme")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestResolveInvalidTenantID(t *testing.T) {
	r, err := New(Options{Policy: PolicyStatic, DefaultEngine: core.EngineMongoDB, BaseURIs: baseURIs()})
	require.NoError(t, err)

	for _, tenantID := range []string{"", "a/b", "a b", "a#b", "a:b"} {
		_, err := r.Resolve(tenantID)
		require.Error(t, err, "tenant %q", tenantID)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	}
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Policy: PolicyStatic})
	assert.Error(t, err)

	_, err = New(Options{Policy: PolicyMapping})
	assert.Error(t, err)

	_, err = New(Options{Policy: "guesswork"})
	assert.Error(t, err)
}

func TestEngineTypes(t *testing.T) {
	r, err := New(Options{
		Policy: PolicyMapping,
		Routes: map[string]Route{
			"acme":    {Engine: core.EnginePostgres},
			"globex":  {Engine: core.EngineMongoDB},
			"initech": {Engine: core.EnginePostgres},
		},
		DefaultRoute: &Route{Engine: core.EngineRedis},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]core.EngineType{core.EnginePostgres, core.EngineMongoDB, core.EngineRedis},
		r.EngineTypes())
}

func TestLoadRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	content := `
tenants:
  acme:
    engine: postgres
  globex:
    engine: mongodb
    uri: mongodb://db.globex.internal:27017/globex
default:
  engine: mongodb
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	routes, err := LoadRoutes(path)
	require.NoError(t, err)

	assert.Equal(t, core.EnginePostgres, routes.Tenants["acme"].Engine)
	assert.Equal(t, "mongodb://db.globex.internal:27017/globex", routes.Tenants["globex"].URI)
	require.NotNil(t, routes.Default)
	assert.Equal(t, core.EngineMongoDB, routes.Default.Engine)
}

func TestLoadRoutesRejectsMissingEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tenants:\n  acme: {}\n"), 0o600))

	_, err := LoadRoutes(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDefaultExtractor(t *testing.T) {
	extract := DefaultExtractor(DefaultTenant)

	t.Run("header wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pathtenant/users", nil)
		req.Header.Set(HeaderName, "headertenant")
		req = mux.SetURLVars(req, map[string]string{"tenant": "pathtenant"})

		assert.Equal(t, "headertenant", extract(req))
	})

	t.Run("path segment fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pathtenant/users", nil)
		req = mux.SetURLVars(req, map[string]string{"tenant": "pathtenant"})

		assert.Equal(t, "pathtenant", extract(req))
	})

	t.Run("sentinel fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		assert.Equal(t, DefaultTenant, extract(req))
	})

	t.Run("disabled sentinel", func(t *testing.T) {
		strict := DefaultExtractor("")
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		assert.Equal(t, "", strict(req))
	})
}
