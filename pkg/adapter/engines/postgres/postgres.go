// Package postgres implements the relational adapter backed by PostgreSQL.
//
// Each entity maps to a table in the tenant database; record fields map to
// columns and the generic "id" key maps to a UUID primary-key column named
// "id". The gateway performs no DDL: tables must exist with the columns a
// record carries, and a write against a missing table or column surfaces as
// a query error.
package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
	"github.com/ajitpratap0/polystore/pkg/record"
)

// Adapter implements core.Adapter against PostgreSQL.
type Adapter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu sync.RWMutex
}

// New creates an unconnected PostgreSQL adapter.
func New() core.Adapter {
	return &Adapter{
		logger: logger.Get().With(zap.String("engine", string(core.EnginePostgres))),
	}
}

// Engine reports the engine type.
func (a *Adapter) Engine() core.EngineType {
	return core.EnginePostgres
}

// Connect establishes the connection pool and verifies it with a ping.
func (a *Adapter) Connect(ctx context.Context, connectionString string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		return nil
	}

	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "postgres ping failed")
	}

	a.pool = pool
	a.logger.Info("connected to postgres",
		zap.String("database", pool.Config().ConnConfig.Database))
	return nil
}

// FindOne returns the first row matching the filter.
func (a *Adapter) FindOne(ctx context.Context, entity string, filter record.Filter) (record.Record, error) {
	records, err := a.find(ctx, entity, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindMany returns all rows matching the filter.
func (a *Adapter) FindMany(ctx context.Context, entity string, filter record.Filter) ([]record.Record, error) {
	return a.find(ctx, entity, filter, 0)
}

func (a *Adapter) find(ctx context.Context, entity string, filter record.Filter, limit int) ([]record.Record, error) {
	pool, err := a.getPool(entity)
	if err != nil {
		return nil, err
	}

	sql, args, err := BuildSelect(entity, filter, limit)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres select failed")
	}
	defer rows.Close()

	return decodeRows(rows)
}

// Create inserts a row and returns it as stored. When the record carries no
// id a fresh UUID is assigned.
func (a *Adapter) Create(ctx context.Context, entity string, rec record.Record) (record.Record, error) {
	pool, err := a.getPool(entity)
	if err != nil {
		return nil, err
	}

	sql, args, err := BuildInsert(entity, rec)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres insert failed")
	}
	defer rows.Close()

	records, err := decodeRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New(errors.ErrorTypeInternal, "postgres insert returned no row")
	}
	return records[0], nil
}

// Update applies a partial column update and returns the post-update row
// re-read from the store. Missing ids yield (nil, nil).
func (a *Adapter) Update(ctx context.Context, entity string, id string, partial record.Record) (record.Record, error) {
	pool, err := a.getPool(entity)
	if err != nil {
		return nil, err
	}

	sql, args, err := BuildUpdate(entity, id, partial)
	if err != nil {
		return nil, err
	}

	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres update failed")
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	// Re-read rather than trusting the write path with the final value.
	return a.FindOne(ctx, entity, record.Filter{record.PrimaryKey: id})
}

// Delete removes the row with the given id. A 0-match delete returns
// (false, nil).
func (a *Adapter) Delete(ctx context.Context, entity string, id string) (bool, error) {
	pool, err := a.getPool(entity)
	if err != nil {
		return false, err
	}

	sql, args, err := BuildDelete(entity, id)
	if err != nil {
		return false, err
	}

	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "postgres delete failed")
	}

	return tag.RowsAffected() == 1, nil
}

// Introspect reports the public tables and their columns from the
// information schema.
func (a *Adapter) Introspect(ctx context.Context) (core.SchemaMetadata, error) {
	a.mu.RLock()
	pool := a.pool
	a.mu.RUnlock()

	if pool == nil {
		return nil, notConnected()
	}

	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres introspection failed")
	}
	defer rows.Close()

	tables := map[string][]map[string]interface{}{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres introspection scan failed")
		}
		tables[table] = append(tables[table], map[string]interface{}{
			"column":   column,
			"type":     dataType,
			"nullable": nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres introspection failed")
	}

	return core.SchemaMetadata{
		"engine":   string(core.EnginePostgres),
		"database": pool.Config().ConnConfig.Database,
		"tables":   tables,
	}, nil
}

// Ping probes the connection pool.
func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	pool := a.pool
	a.mu.RUnlock()

	if pool == nil {
		return notConnected()
	}
	if err := pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "postgres ping failed")
	}
	return nil
}

// Close tears down the connection pool.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

func (a *Adapter) getPool(entity string) (*pgxpool.Pool, error) {
	if err := validateEntity(entity); err != nil {
		return nil, err
	}

	a.mu.RLock()
	pool := a.pool
	a.mu.RUnlock()

	if pool == nil {
		return nil, notConnected()
	}
	return pool, nil
}

func notConnected() error {
	return errors.New(errors.ErrorTypeNotConnected, "postgres adapter used before connect")
}

func decodeRows(rows pgx.Rows) ([]record.Record, error) {
	fields := rows.FieldDescriptions()

	var out []record.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres row decode failed")
		}
		out = append(out, DecodeRow(fields, values))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "postgres query failed")
	}
	if out == nil {
		out = []record.Record{}
	}
	return out, nil
}
