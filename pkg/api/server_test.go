package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/config"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/gateway"
	"github.com/ajitpratap0/polystore/pkg/record"
	"github.com/ajitpratap0/polystore/pkg/tenant"
)

// memFactory hands out in-memory adapters. Stores are keyed by connection
// string so two adapters connected with the same string share data, the way
// two connections to one database would.
type memFactory struct {
	mu       sync.Mutex
	stores   map[string]*memStore
	connects int
	failFind error // returned by the next FindOne, then cleared
}

func newMemFactory() *memFactory {
	return &memFactory{stores: make(map[string]*memStore)}
}

func (f *memFactory) Create(engine core.EngineType) (core.Adapter, error) {
	return &memAdapter{factory: f, engine: engine}, nil
}

func (f *memFactory) storeFor(connStr string) *memStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	store, ok := f.stores[connStr]
	if !ok {
		store = &memStore{entities: make(map[string]map[string]record.Record)}
		f.stores[connStr] = store
	}
	return store
}

func (f *memFactory) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *memFactory) takeFindFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failFind
	f.failFind = nil
	return err
}

type memStore struct {
	mu       sync.Mutex
	entities map[string]map[string]record.Record
}

type memAdapter struct {
	factory *memFactory
	engine  core.EngineType
	store   *memStore
}

func (a *memAdapter) Connect(_ context.Context, connStr string) error {
	a.store = a.factory.storeFor(connStr)
	return nil
}

func validateMemID(id string) error {
	if strings.HasPrefix(id, "!") {
		return errors.Newf(errors.ErrorTypeInvalidIdentifier, "malformed identifier %q", id)
	}
	return nil
}

func (a *memAdapter) FindOne(_ context.Context, entity string, filter record.Filter) (record.Record, error) {
	if err := a.factory.takeFindFailure(); err != nil {
		return nil, err
	}
	if id, ok := filter.ID(); ok {
		if err := validateMemID(id); err != nil {
			return nil, err
		}
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	for _, rec := range a.store.entities[entity] {
		if matches(rec, filter) {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (a *memAdapter) FindMany(_ context.Context, entity string, filter record.Filter) ([]record.Record, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	out := []record.Record{}
	for _, rec := range a.store.entities[entity] {
		if matches(rec, filter) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (a *memAdapter) Create(_ context.Context, entity string, rec record.Record) (record.Record, error) {
	stored := rec.Clone()
	id, ok := stored.ID()
	if !ok {
		id = uuid.NewString()
		stored = stored.WithID(id)
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if a.store.entities[entity] == nil {
		a.store.entities[entity] = make(map[string]record.Record)
	}
	a.store.entities[entity][id] = stored
	return stored.Clone(), nil
}

func (a *memAdapter) Update(_ context.Context, entity, id string, partial record.Record) (record.Record, error) {
	if err := validateMemID(id); err != nil {
		return nil, err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	existing, ok := a.store.entities[entity][id]
	if !ok {
		return nil, nil
	}
	merged := existing.Merge(partial)
	a.store.entities[entity][id] = merged
	return merged.Clone(), nil
}

func (a *memAdapter) Delete(_ context.Context, entity, id string) (bool, error) {
	if err := validateMemID(id); err != nil {
		return false, err
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	if _, ok := a.store.entities[entity][id]; !ok {
		return false, nil
	}
	delete(a.store.entities[entity], id)
	return true, nil
}

func (a *memAdapter) Introspect(_ context.Context) (core.SchemaMetadata, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	entities := map[string]interface{}{}
	for name, recs := range a.store.entities {
		entities[name] = map[string]interface{}{"count": len(recs)}
	}
	return core.SchemaMetadata{"engine": string(a.engine), "entities": entities}, nil
}

func (a *memAdapter) Ping(_ context.Context) error  { return nil }
func (a *memAdapter) Close(_ context.Context) error { return nil }
func (a *memAdapter) Engine() core.EngineType       { return a.engine }

func matches(rec record.Record, filter record.Filter) bool {
	for key, want := range filter {
		if rec[key] != want {
			return false
		}
	}
	return true
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

type testEnv struct {
	server   *Server
	factory  *memFactory
	registry *gateway.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	resolver, err := tenant.New(tenant.Options{
		Policy: tenant.PolicyMapping,
		Routes: map[string]tenant.Route{
			"t1":             {Engine: core.EngineMongoDB, URI: "mem://one"},
			"t2":             {Engine: core.EngineMongoDB, URI: "mem://two"},
			"default_tenant": {Engine: core.EngineMongoDB, URI: "mem://default"},
		},
	})
	require.NoError(t, err)

	factory := newMemFactory()
	registry := gateway.NewRegistry(factory, gateway.Options{ConnectAttempts: 1})

	cfg := &config.Config{}
	cfg.Routing.DefaultTenant = "default_tenant"

	return &testEnv{
		server:   NewServer(cfg, resolver, registry, zap.NewNop()),
		factory:  factory,
		registry: registry,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, gojson.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, gojson.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func TestCreateGetDeleteRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rr, created := env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, created.Success)

	data, ok := created.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Ada", data["name"])
	id, ok := data["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	rr, fetched := env.do(t, http.MethodGet, "/api/t1/users/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := fetched.Data.(map[string]interface{})
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, id, got["id"])

	rr, deleted := env.do(t, http.MethodDelete, "/api/t1/users/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, deleted.Data)

	// The record is gone but the response is still a success envelope.
	rr, missing := env.do(t, http.MethodGet, "/api/t1/users/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, missing.Success)
	assert.Nil(t, missing.Data)
	assert.Contains(t, rr.Body.String(), `"data":null`)

	// Deleting again matches nothing: success with data false.
	rr, again := env.do(t, http.MethodDelete, "/api/t1/users/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, again.Success)
	assert.Equal(t, false, again.Data)
}

func TestUpdateMergesPartial(t *testing.T) {
	env := newTestEnv(t)

	_, created := env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada", "role": "user"}, nil)
	id := created.Data.(map[string]interface{})["id"].(string)

	rr, updated := env.do(t, http.MethodPatch, "/api/t1/users/"+id, map[string]interface{}{"role": "admin"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := updated.Data.(map[string]interface{})
	assert.Equal(t, "Ada", data["name"])
	assert.Equal(t, "admin", data["role"])
	assert.Equal(t, id, data["id"])

	// Updating a missing id is not an error.
	rr, missing := env.do(t, http.MethodPatch, "/api/t1/users/"+uuid.NewString(), map[string]interface{}{"role": "x"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, missing.Success)
	assert.Nil(t, missing.Data)
}

func TestListFiltersByQuery(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada"}, nil)
	env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Grace"}, nil)

	rr, all := env.do(t, http.MethodGet, "/api/t1/users", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, all.Data.([]interface{}), 2)

	rr, filtered := env.do(t, http.MethodGet, "/api/t1/users?name=Ada", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := filtered.Data.([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Ada", list[0].(map[string]interface{})["name"])
}

func TestTenantsAreIsolated(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada"}, nil)

	rr, other := env.do(t, http.MethodGet, "/api/t2/users", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, other.Data)
}

func TestHeaderOverridesPathTenant(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada"},
		map[string]string{"x-tenant-id": "t2"})

	_, fromT2 := env.do(t, http.MethodGet, "/api/t2/users", nil, nil)
	require.Len(t, fromT2.Data.([]interface{}), 1)

	_, fromT1 := env.do(t, http.MethodGet, "/api/t1/users", nil, nil)
	assert.Empty(t, fromT1.Data)
}

func TestUnknownTenantRejected(t *testing.T) {
	env := newTestEnv(t)

	rr, env2 := env.do(t, http.MethodGet, "/api/stranger/users", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env2.Success)
	assert.Equal(t, string(errors.ErrorTypeUnknownTenant), env2.Error)
}

func TestInvalidTenantIDRejected(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/api/a:b/users", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(errors.ErrorTypeValidation), body.Error)
}

func TestMalformedIdentifierRejected(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/api/t1/users/!bad", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(errors.ErrorTypeInvalidIdentifier), body.Error)
}

func TestCreateRejectsEmptyAndMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(errors.ErrorTypeValidation), body.Error)

	req := httptest.NewRequest(http.MethodPost, "/api/t1/users", strings.NewReader("not json"))
	rr2 := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr2, req)
	assert.Equal(t, http.StatusBadRequest, rr2.Code)
}

func TestConnectionErrorInvalidatesHandle(t *testing.T) {
	env := newTestEnv(t)

	// Warm the handle.
	_, _ = env.do(t, http.MethodGet, "/api/t1/users/abc", nil, nil)
	require.Equal(t, 1, env.registry.Len())
	require.Equal(t, 1, env.factory.connectCount())

	env.factory.failFind = errors.New(errors.ErrorTypeConnection, "connection reset")
	rr, _ := env.do(t, http.MethodGet, "/api/t1/users/abc", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, 0, env.registry.Len(), "connection failure must drop the cached handle")

	// The next request reconnects and succeeds.
	rr, body := env.do(t, http.MethodGet, "/api/t1/users/abc", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
	assert.Equal(t, 2, env.factory.connectCount())
}

func TestIntrospectReservedEntity(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/t1/users", map[string]interface{}{"name": "Ada"}, nil)

	rr, body := env.do(t, http.MethodGet, "/api/t1/_schema", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	data := body.Data.(map[string]interface{})
	entities := data["entities"].(map[string]interface{})
	assert.Contains(t, entities, "users")
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t)

	rr, _ := env.do(t, http.MethodGet, "/api/t1/users", nil, nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr, _ = env.do(t, http.MethodGet, "/api/t1/users", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
}
