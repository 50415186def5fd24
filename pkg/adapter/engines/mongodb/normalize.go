package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/record"
)

// ParseObjectID constructs a native ObjectID from the generic string id.
// Construction failure is an invalid_identifier error, distinct from a
// not-found result.
func ParseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.Newf(errors.ErrorTypeInvalidIdentifier,
			"%q is not a valid mongodb object id", id)
	}
	return oid, nil
}

// NormalizeFilter translates a generic equality filter to a BSON query. The
// reserved "id" key is replaced by "_id" with a native ObjectID; all other
// keys pass through unchanged.
func NormalizeFilter(filter record.Filter) (bson.M, error) {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}

	if id, ok := filter.ID(); ok {
		oid, err := ParseObjectID(id)
		if err != nil {
			return nil, err
		}
		delete(query, record.PrimaryKey)
		query[nativeKey] = oid
	}

	return query, nil
}

// EncodeRecord translates a generic record to a BSON document for insertion.
// A caller-supplied "id" becomes the native "_id"; otherwise the driver
// assigns one.
func EncodeRecord(rec record.Record) (bson.M, error) {
	doc := bson.M{}
	for k, v := range rec {
		doc[k] = v
	}

	if id, ok := rec.ID(); ok {
		oid, err := ParseObjectID(id)
		if err != nil {
			return nil, err
		}
		delete(doc, record.PrimaryKey)
		doc[nativeKey] = oid
	}

	return doc, nil
}

// DecodeDocument translates a BSON document back to a generic record,
// re-exposing the primary key under "id" and never under "_id".
func DecodeDocument(doc bson.M) record.Record {
	rec := make(record.Record, len(doc))
	for k, v := range doc {
		if k == nativeKey {
			continue
		}
		rec[k] = v
	}

	if raw, ok := doc[nativeKey]; ok {
		switch id := raw.(type) {
		case primitive.ObjectID:
			rec[record.PrimaryKey] = id.Hex()
		case string:
			rec[record.PrimaryKey] = id
		default:
			rec[record.PrimaryKey] = fmt.Sprintf("%v", id)
		}
	}

	return rec
}
