package api

import (
	"context"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/gateway"
	"github.com/ajitpratap0/polystore/pkg/record"
	"github.com/ajitpratap0/polystore/pkg/tenant"
)

// Handlers is the generic dispatch layer: it parses {tenant, entity, id},
// resolves the tenant's routing decision, acquires the adapter handle and
// invokes the matching CRUD operation. It performs no business validation of
// entity or record shape.
type Handlers struct {
	resolver *tenant.Resolver
	registry *gateway.Registry
	extract  tenant.Extractor
	logger   *zap.Logger
}

// NewHandlers creates the dispatch handlers.
func NewHandlers(resolver *tenant.Resolver, registry *gateway.Registry, extract tenant.Extractor, logger *zap.Logger) *Handlers {
	return &Handlers{
		resolver: resolver,
		registry: registry,
		extract:  extract,
		logger:   logger,
	}
}

// operation is one normalized CRUD call against an acquired adapter.
type operation func(ctx context.Context, adapter core.Adapter) (interface{}, error)

// GetOne handles GET /api/{tenant}/{entity}/{id}.
func (h *Handlers) GetOne(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, id := vars["entity"], vars["id"]

	filter := filterFromQuery(r)
	filter[record.PrimaryKey] = id

	h.dispatch(w, r, "findOne", entity, id, func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.FindOne(ctx, entity, filter)
	})
}

// List handles GET /api/{tenant}/{entity}.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]
	filter := filterFromQuery(r)

	h.dispatch(w, r, "findMany", entity, "", func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.FindMany(ctx, entity, filter)
	})
}

// Create handles POST /api/{tenant}/{entity}.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]

	rec, err := decodeBody(r)
	if err != nil {
		WriteErr(w, r, err)
		return
	}

	h.dispatch(w, r, "create", entity, "", func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.Create(ctx, entity, rec)
	})
}

// Update handles PATCH/PUT /api/{tenant}/{entity}/{id} with partial-merge
// semantics.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, id := vars["entity"], vars["id"]

	partial, err := decodeBody(r)
	if err != nil {
		WriteErr(w, r, err)
		return
	}

	h.dispatch(w, r, "update", entity, id, func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.Update(ctx, entity, id, partial)
	})
}

// Delete handles DELETE /api/{tenant}/{entity}/{id}. The payload is the
// boolean deletion result; a 0-match delete is success with data false.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, id := vars["entity"], vars["id"]

	h.dispatch(w, r, "delete", entity, id, func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.Delete(ctx, entity, id)
	})
}

// Introspect handles GET /api/{tenant}/_schema.
func (h *Handlers) Introspect(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "introspect", "_schema", "", func(ctx context.Context, adapter core.Adapter) (interface{}, error) {
		return adapter.Introspect(ctx)
	})
}

// dispatch runs the resolve -> acquire -> invoke chain and shapes the
// response envelope. Connection-class failures invalidate the tenant's
// cached handle so the next request reconnects; that request-triggered
// retry is the system's only retry mechanism.
func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, op, entity, id string, invoke operation) {
	start := time.Now()

	tenantID := h.extract(r)
	if tenantID == "" {
		err := errors.New(errors.ErrorTypeValidation, "request carries no tenant identity")
		h.finish(w, r, op, "", entity, id, "", start, nil, err)
		return
	}

	decision, err := h.resolver.Resolve(tenantID)
	if err != nil {
		h.finish(w, r, op, tenantID, entity, id, "", start, nil, err)
		return
	}
	engine := string(decision.Engine)

	adapter, err := h.registry.Acquire(r.Context(), decision)
	if err != nil {
		h.finish(w, r, op, tenantID, entity, id, engine, start, nil, err)
		return
	}

	result, err := invoke(r.Context(), adapter)
	if err != nil && connectionClass(err) {
		h.registry.Invalidate(tenantID)
	}
	h.finish(w, r, op, tenantID, entity, id, engine, start, result, err)
}

func (h *Handlers) finish(w http.ResponseWriter, r *http.Request, op, tenantID, entity, id, engine string, start time.Time, result interface{}, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(errors.TypeOf(err))
	}

	h.logger.Info("dispatch",
		zap.String("tenant", tenantID),
		zap.String("entity", entity),
		zap.String("id", id),
		zap.String("operation", op),
		zap.String("outcome", outcome),
		zap.Duration("latency", time.Since(start)),
	)
	observe(engine, op, outcome, start)

	if err != nil {
		WriteErr(w, r, err)
		return
	}
	WriteSuccess(w, result)
}

func connectionClass(err error) bool {
	return errors.IsType(err, errors.ErrorTypeConnection) ||
		errors.IsType(err, errors.ErrorTypeNotConnected)
}

// filterFromQuery turns query parameters into an equality filter.
func filterFromQuery(r *http.Request) record.Filter {
	filter := record.Filter{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}
	return filter
}

func decodeBody(r *http.Request) (record.Record, error) {
	var rec record.Record
	if err := gojson.NewDecoder(r.Body).Decode(&rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "request body is not a JSON object")
	}
	if len(rec) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "request body must not be empty")
	}
	return rec, nil
}
