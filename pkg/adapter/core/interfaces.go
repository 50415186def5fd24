// Package core defines the contract every storage engine adapter implements.
package core

import (
	"context"
	"time"

	"github.com/ajitpratap0/polystore/pkg/record"
)

// EngineType identifies a storage engine implementation.
type EngineType string

const (
	// EngineMongoDB is the document-store engine backed by MongoDB.
	EngineMongoDB EngineType = "mongodb"
	// EnginePostgres is the relational engine backed by PostgreSQL.
	EnginePostgres EngineType = "postgres"
	// EngineRedis is the key-value engine backed by Redis.
	EngineRedis EngineType = "redis"
)

// SchemaMetadata describes the introspected shape of a tenant's data store.
// Content is engine-specific; consumers must not assume a fixed schema.
type SchemaMetadata map[string]interface{}

// Adapter is the interface all storage engine implementations must satisfy.
//
// Connect must succeed before any other operation; operations invoked on a
// disconnected adapter fail with a not_connected error. Lookups that match
// nothing return (nil, nil) rather than an error, and Delete reports a
// 0-match delete as (false, nil). Every operation takes a context so callers
// hold a bounded-time contract over a remote engine.
type Adapter interface {
	// Connect establishes the underlying connection. An adapter is connected
	// at most once and then reused across requests.
	Connect(ctx context.Context, connectionString string) error

	// FindOne returns the first record matching the filter, or (nil, nil)
	// when nothing matches.
	FindOne(ctx context.Context, entity string, filter record.Filter) (record.Record, error)

	// FindMany returns all records matching the filter. The result is finite
	// and eager.
	FindMany(ctx context.Context, entity string, filter record.Filter) ([]record.Record, error)

	// Create stores a new record and returns it as stored, including the
	// assigned primary identifier under the generic "id" key.
	Create(ctx context.Context, entity string, rec record.Record) (record.Record, error)

	// Update applies a partial merge (present fields overwrite, absent fields
	// are untouched) and returns the post-update record re-read from the
	// store, or (nil, nil) when the id matches nothing.
	Update(ctx context.Context, entity string, id string, partial record.Record) (record.Record, error)

	// Delete removes the record with the given id. Returns true iff exactly
	// one record was removed; a 0-match delete returns (false, nil).
	Delete(ctx context.Context, entity string, id string) (bool, error)

	// Introspect returns best-effort, engine-specific schema metadata. It
	// must not fail merely because the engine enforces no schema.
	Introspect(ctx context.Context) (SchemaMetadata, error)

	// Ping probes the health of the underlying connection.
	Ping(ctx context.Context) error

	// Close tears down the underlying connection.
	Close(ctx context.Context) error

	// Engine reports which engine type this adapter implements.
	Engine() EngineType
}

// HealthStatus reports adapter connection health for diagnostics.
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
