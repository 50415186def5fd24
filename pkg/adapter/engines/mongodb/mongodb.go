// Package mongodb implements the document-store adapter backed by MongoDB.
//
// Records map to BSON documents; the generic "id" key maps to the native
// "_id" ObjectID. The database the adapter operates on is the one named in
// the connection string, which the tenant resolver sets per tenant.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
	"github.com/ajitpratap0/polystore/pkg/record"
)

// nativeKey is MongoDB's primary identifier field.
const nativeKey = "_id"

// Adapter implements core.Adapter against MongoDB.
type Adapter struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *zap.Logger

	mu sync.RWMutex
}

// New creates an unconnected MongoDB adapter.
func New() core.Adapter {
	return &Adapter{
		logger: logger.Get().With(zap.String("engine", string(core.EngineMongoDB))),
	}
}

// Engine reports the engine type.
func (a *Adapter) Engine() core.EngineType {
	return core.EngineMongoDB
}

// Connect establishes the MongoDB connection and verifies it with a ping.
// The connection string must name a database; that database scopes every
// subsequent operation.
func (a *Adapter) Connect(ctx context.Context, connectionString string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.database != nil {
		return nil
	}

	dbName, err := databaseFromURI(connectionString)
	if err != nil {
		return err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mongodb")
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return errors.Wrap(err, errors.ErrorTypeConnection, "mongodb ping failed")
	}

	a.client = client
	a.database = client.Database(dbName)
	a.logger.Info("connected to mongodb", zap.String("database", dbName))
	return nil
}

// FindOne returns the first document matching the filter.
func (a *Adapter) FindOne(ctx context.Context, entity string, filter record.Filter) (record.Record, error) {
	coll, err := a.collection(entity)
	if err != nil {
		return nil, err
	}

	query, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	if err := coll.FindOne(ctx, query).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb findOne failed")
	}

	return DecodeDocument(doc), nil
}

// FindMany returns all documents matching the filter.
func (a *Adapter) FindMany(ctx context.Context, entity string, filter record.Filter) ([]record.Record, error) {
	coll, err := a.collection(entity)
	if err != nil {
		return nil, err
	}

	query, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb find failed")
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb cursor drain failed")
	}

	out := make([]record.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DecodeDocument(doc))
	}
	return out, nil
}

// Create inserts a document and returns it with the assigned id.
func (a *Adapter) Create(ctx context.Context, entity string, rec record.Record) (record.Record, error) {
	coll, err := a.collection(entity)
	if err != nil {
		return nil, err
	}

	doc, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}

	result, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb insert failed")
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"mongodb returned unexpected inserted id type %T", result.InsertedID)
	}

	return rec.WithID(oid.Hex()), nil
}

// Update applies a $set of the partial record and returns the post-update
// document re-read from the store. Missing ids yield (nil, nil).
func (a *Adapter) Update(ctx context.Context, entity string, id string, partial record.Record) (record.Record, error) {
	coll, err := a.collection(entity)
	if err != nil {
		return nil, err
	}

	oid, err := ParseObjectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	for k, v := range partial {
		if k == record.PrimaryKey {
			continue
		}
		set[k] = v
	}

	result, err := coll.UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb update failed")
	}
	if result.MatchedCount == 0 {
		return nil, nil
	}

	// The write path does not return the final document; re-read it.
	return a.FindOne(ctx, entity, record.Filter{record.PrimaryKey: id})
}

// Delete removes the document with the given id. A 0-match delete returns
// (false, nil).
func (a *Adapter) Delete(ctx context.Context, entity string, id string) (bool, error) {
	coll, err := a.collection(entity)
	if err != nil {
		return false, err
	}

	oid, err := ParseObjectID(id)
	if err != nil {
		return false, err
	}

	result, err := coll.DeleteOne(ctx, bson.M{nativeKey: oid})
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb delete failed")
	}

	return result.DeletedCount == 1, nil
}

// Introspect lists the collections of the tenant database. MongoDB enforces
// no schema, so this is the extent of what the engine can report.
func (a *Adapter) Introspect(ctx context.Context) (core.SchemaMetadata, error) {
	a.mu.RLock()
	db := a.database
	a.mu.RUnlock()

	if db == nil {
		return nil, notConnected()
	}

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "mongodb collection listing failed")
	}

	return core.SchemaMetadata{
		"engine":      string(core.EngineMongoDB),
		"database":    db.Name(),
		"collections": names,
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
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "mongodb ping failed")
	}
	return nil
}

// Close disconnects from MongoDB.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client = nil
	a.database = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "mongodb disconnect failed")
	}
	return nil
}

func (a *Adapter) collection(entity string) (*mongo.Collection, error) {
	if err := validateEntity(entity); err != nil {
		return nil, err
	}

	a.mu.RLock()
	db := a.database
	a.mu.RUnlock()

	if db == nil {
		return nil, notConnected()
	}
	return db.Collection(entity), nil
}

// validateEntity rejects names that would collide with MongoDB system
// collections.
func validateEntity(entity string) error {
	if entity == "" {
		return errors.New(errors.ErrorTypeValidation, "entity name must not be empty")
	}
	if strings.HasPrefix(entity, "system.") {
		return errors.Newf(errors.ErrorTypeValidation, "entity %q collides with a system collection", entity)
	}
	return nil
}

func notConnected() error {
	return errors.New(errors.ErrorTypeNotConnected, "mongodb adapter used before connect")
}

// databaseFromURI extracts the database name from a MongoDB connection
// string.
func databaseFromURI(connectionString string) (string, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "malformed mongodb connection string")
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return "", errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("mongodb connection string %q must name a database", u.Redacted()))
	}
	return dbName, nil
}
