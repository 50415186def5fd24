// Package redis implements the key-value adapter backed by Redis.
//
// Records are stored as JSON strings under "{namespace}:{entity}:{id}", with
// a per-entity set "{namespace}:{entity}" indexing the ids that exist.
// Redis has no per-tenant databases to hand out, so tenant isolation is a
// key namespace: the resolver appends it to the connection string as a URI
// fragment ("redis://host:6379/0#tenant").
package redis

import (
	"context"
	"reflect"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
	"github.com/ajitpratap0/polystore/pkg/record"
)

// keySeparator joins namespace, entity and id into a Redis key. Entities and
// ids must not contain it.
const keySeparator = ":"

// Adapter implements core.Adapter against Redis.
type Adapter struct {
	client    *goredis.Client
	namespace string
	logger    *zap.Logger

	mu sync.RWMutex
}

// New creates an unconnected Redis adapter.
func New() core.Adapter {
	return &Adapter{
		logger: logger.Get().With(zap.String("engine", string(core.EngineRedis))),
	}
}

// Engine reports the engine type.
func (a *Adapter) Engine() core.EngineType {
	return core.EngineRedis
}

// Connect establishes the Redis connection and verifies it with a ping.
func (a *Adapter) Connect(ctx context.Context, connectionString string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return nil
	}

	uri, namespace, err := SplitNamespace(connectionString)
	if err != nil {
		return err
	}

	opts, err := goredis.ParseURL(uri)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "malformed redis connection string")
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "redis ping failed")
	}

	a.client = client
	a.namespace = namespace
	a.logger.Info("connected to redis",
		zap.String("addr", opts.Addr), zap.String("namespace", namespace))
	return nil
}

// FindOne returns the first record matching the filter.
func (a *Adapter) FindOne(ctx context.Context, entity string, filter record.Filter) (record.Record, error) {
	records, err := a.findLimit(ctx, entity, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindMany returns all records matching the filter.
func (a *Adapter) FindMany(ctx context.Context, entity string, filter record.Filter) ([]record.Record, error) {
	return a.findLimit(ctx, entity, filter, 0)
}

func (a *Adapter) findLimit(ctx context.Context, entity string, filter record.Filter, limit int) ([]record.Record, error) {
	client, namespace, err := a.getClient(entity)
	if err != nil {
		return nil, err
	}

	// An id filter addresses exactly one key; anything else walks the
	// entity index and matches equality client-side.
	if id, ok := filter.ID(); ok {
		if err := ValidateID(id); err != nil {
			return nil, err
		}
		rec, err := a.load(ctx, client, RecordKey(namespace, entity, id))
		if err != nil || rec == nil {
			return nil, err
		}
		if !Matches(rec, filter.WithoutID()) {
			return []record.Record{}, nil
		}
		return []record.Record{rec}, nil
	}

	ids, err := client.SMembers(ctx, IndexKey(namespace, entity)).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis index read failed")
	}

	out := []record.Record{}
	for _, id := range ids {
		rec, err := a.load(ctx, client, RecordKey(namespace, entity, id))
		if err != nil {
			return nil, err
		}
		if rec == nil || !Matches(rec, filter) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Create stores a record and indexes its id. When the record carries no id a
// fresh UUID is assigned.
func (a *Adapter) Create(ctx context.Context, entity string, rec record.Record) (record.Record, error) {
	client, namespace, err := a.getClient(entity)
	if err != nil {
		return nil, err
	}

	id, ok := rec.ID()
	if ok {
		if err := ValidateID(id); err != nil {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}

	stored := rec.WithID(id)
	payload, err := gojson.Marshal(stored)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis record encoding failed")
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, RecordKey(namespace, entity, id), payload, 0)
	pipe.SAdd(ctx, IndexKey(namespace, entity), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis write failed")
	}

	return stored, nil
}

// Update merges the partial record over the stored one and returns the
// post-update record re-read from the store. Missing ids yield (nil, nil).
func (a *Adapter) Update(ctx context.Context, entity string, id string, partial record.Record) (record.Record, error) {
	client, namespace, err := a.getClient(entity)
	if err != nil {
		return nil, err
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	key := RecordKey(namespace, entity, id)
	existing, err := a.load(ctx, client, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	merged := existing.Merge(partial)
	payload, err := gojson.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis record encoding failed")
	}
	if err := client.Set(ctx, key, payload, 0).Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis write failed")
	}

	return a.load(ctx, client, key)
}

// Delete removes the record and unindexes its id. A 0-match delete returns
// (false, nil).
func (a *Adapter) Delete(ctx context.Context, entity string, id string) (bool, error) {
	client, namespace, err := a.getClient(entity)
	if err != nil {
		return false, err
	}
	if err := ValidateID(id); err != nil {
		return false, err
	}

	pipe := client.TxPipeline()
	del := pipe.Del(ctx, RecordKey(namespace, entity, id))
	pipe.SRem(ctx, IndexKey(namespace, entity), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "redis delete failed")
	}

	return del.Val() == 1, nil
}

// Introspect reports the entities in the tenant namespace and how many
// records each indexes.
func (a *Adapter) Introspect(ctx context.Context) (core.SchemaMetadata, error) {
	a.mu.RLock()
	client, namespace := a.client, a.namespace
	a.mu.RUnlock()

	if client == nil {
		return nil, notConnected()
	}

	entities := map[string]interface{}{}
	pattern := namespace + keySeparator + "*"
	iter := client.ScanType(ctx, 0, pattern, 0, "set").Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		entity := strings.TrimPrefix(key, namespace+keySeparator)
		count, err := client.SCard(ctx, key).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis introspection failed")
		}
		entities[entity] = count
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis introspection failed")
	}

	return core.SchemaMetadata{
		"engine":    string(core.EngineRedis),
		"namespace": namespace,
		"entities":  entities,
	}, nil
}

// Ping probes the connection.
func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil {
		return notConnected()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "redis ping failed")
	}
	return nil
}

// Close tears down the connection.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "redis close failed")
	}
	return nil
}

func (a *Adapter) getClient(entity string) (*goredis.Client, string, error) {
	if err := validateEntity(entity); err != nil {
		return nil, "", err
	}

	a.mu.RLock()
	client, namespace := a.client, a.namespace
	a.mu.RUnlock()

	if client == nil {
		return nil, "", notConnected()
	}
	return client, namespace, nil
}

func (a *Adapter) load(ctx context.Context, client *goredis.Client, key string) (record.Record, error) {
	payload, err := client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis read failed")
	}

	var rec record.Record
	if err := gojson.Unmarshal(payload, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "redis record decoding failed")
	}
	return rec, nil
}

func notConnected() error {
	return errors.New(errors.ErrorTypeNotConnected, "redis adapter used before connect")
}

// Matches reports whether the record satisfies every equality clause in the
// filter.
func Matches(rec record.Record, filter record.Filter) bool {
	for k, want := range filter {
		got, ok := rec[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
