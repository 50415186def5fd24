package redis

import (
	"strings"

	"github.com/ajitpratap0/polystore/pkg/errors"
)

// SplitNamespace separates the key namespace from a Redis connection string.
// The namespace rides in the URI fragment; without one the adapter would mix
// tenants in a shared keyspace, so it is required.
func SplitNamespace(connectionString string) (uri, namespace string, err error) {
	uri, namespace, found := strings.Cut(connectionString, "#")
	if !found || namespace == "" {
		return "", "", errors.New(errors.ErrorTypeConfig,
			"redis connection string must carry a key namespace fragment")
	}
	if strings.Contains(namespace, keySeparator) {
		return "", "", errors.Newf(errors.ErrorTypeConfig,
			"redis namespace %q must not contain %q", namespace, keySeparator)
	}
	return uri, namespace, nil
}

// ValidateID checks that the generic string id is usable as a Redis key
// segment. Failure is an invalid_identifier error, distinct from a not-found
// result.
func ValidateID(id string) error {
	if id == "" {
		return errors.New(errors.ErrorTypeInvalidIdentifier, "record id must not be empty")
	}
	if strings.ContainsAny(id, keySeparator+" \t\n") {
		return errors.Newf(errors.ErrorTypeInvalidIdentifier,
			"%q is not a valid redis record id", id)
	}
	return nil
}

// validateEntity rejects entity names that cannot form a key segment.
func validateEntity(entity string) error {
	if entity == "" {
		return errors.New(errors.ErrorTypeValidation, "entity name must not be empty")
	}
	if strings.Contains(entity, keySeparator) {
		return errors.Newf(errors.ErrorTypeValidation,
			"entity %q must not contain %q", entity, keySeparator)
	}
	return nil
}

// RecordKey builds the storage key for one record.
func RecordKey(namespace, entity, id string) string {
	return namespace + keySeparator + entity + keySeparator + id
}

// IndexKey builds the key of the per-entity id index set.
func IndexKey(namespace, entity string) string {
	return namespace + keySeparator + entity
}
