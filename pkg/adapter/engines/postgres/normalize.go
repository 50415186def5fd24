package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/record"
)

// ParseUUID constructs the native UUID primary key from the generic string
// id. Construction failure is an invalid_identifier error, distinct from a
// not-found result.
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, errors.Newf(errors.ErrorTypeInvalidIdentifier,
			"%q is not a valid postgres record id", id)
	}
	return parsed, nil
}

// validateEntity rejects names that would collide with PostgreSQL system
// tables. Identifiers are always sanitized before interpolation, so this is
// about collisions, not injection.
func validateEntity(entity string) error {
	if entity == "" {
		return errors.New(errors.ErrorTypeValidation, "entity name must not be empty")
	}
	if strings.HasPrefix(entity, "pg_") {
		return errors.Newf(errors.ErrorTypeValidation, "entity %q collides with a system table", entity)
	}
	return nil
}

// BuildSelect translates a generic equality filter into a parameterized
// SELECT. The reserved "id" key is matched against the native primary-key
// column with a parsed UUID value. Filter keys are ordered so generated SQL
// is deterministic.
func BuildSelect(entity string, filter record.Filter, limit int) (string, []interface{}, error) {
	if err := validateEntity(entity); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(pgx.Identifier{entity}.Sanitize())

	args, err := writeWhere(&sb, filter)
	if err != nil {
		return "", nil, err
	}

	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}

	return sb.String(), args, nil
}

// BuildInsert translates a generic record into a parameterized INSERT that
// returns the stored row. Records without an id get a freshly generated
// UUID.
func BuildInsert(entity string, rec record.Record) (string, []interface{}, error) {
	if err := validateEntity(entity); err != nil {
		return "", nil, err
	}

	row := rec.Clone()
	if id, ok := rec.ID(); ok {
		parsed, err := ParseUUID(id)
		if err != nil {
			return "", nil, err
		}
		row[record.PrimaryKey] = parsed.String()
	} else {
		row[record.PrimaryKey] = uuid.NewString()
	}

	columns := sortedKeys(row)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{entity}.Sanitize())
	sb.WriteString(" (")

	args := make([]interface{}, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	quoted := make([]string, 0, len(columns))
	for i, col := range columns {
		quoted = append(quoted, pgx.Identifier{col}.Sanitize())
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, row[col])
	}

	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(") RETURNING *")

	return sb.String(), args, nil
}

// BuildUpdate translates a partial record into a parameterized UPDATE of the
// row with the given id. The primary key itself is never updated.
func BuildUpdate(entity string, id string, partial record.Record) (string, []interface{}, error) {
	if err := validateEntity(entity); err != nil {
		return "", nil, err
	}

	parsed, err := ParseUUID(id)
	if err != nil {
		return "", nil, err
	}

	changes := partial.Clone()
	delete(changes, record.PrimaryKey)
	if len(changes) == 0 {
		return "", nil, errors.New(errors.ErrorTypeValidation, "update requires at least one field")
	}

	columns := sortedKeys(changes)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(pgx.Identifier{entity}.Sanitize())
	sb.WriteString(" SET ")

	args := make([]interface{}, 0, len(columns)+1)
	assignments := make([]string, 0, len(columns))
	for i, col := range columns {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i+1))
		args = append(args, changes[col])
	}

	sb.WriteString(strings.Join(assignments, ", "))
	fmt.Fprintf(&sb, " WHERE %s = $%d", pgx.Identifier{record.PrimaryKey}.Sanitize(), len(columns)+1)
	args = append(args, parsed.String())

	return sb.String(), args, nil
}

// BuildDelete translates a delete-by-id into a parameterized DELETE.
func BuildDelete(entity string, id string) (string, []interface{}, error) {
	if err := validateEntity(entity); err != nil {
		return "", nil, err
	}

	parsed, err := ParseUUID(id)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{entity}.Sanitize(),
		pgx.Identifier{record.PrimaryKey}.Sanitize())
	return sql, []interface{}{parsed.String()}, nil
}

// DecodeRow translates a result row back to a generic record. UUID column
// values are re-exposed as canonical strings so the primary key always
// crosses the contract boundary generically.
func DecodeRow(fields []pgconn.FieldDescription, values []interface{}) record.Record {
	rec := make(record.Record, len(fields))
	for i, field := range fields {
		if i >= len(values) {
			break
		}
		rec[field.Name] = decodeValue(values[i])
	}
	return rec
}

func decodeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}

func writeWhere(sb *strings.Builder, filter record.Filter) ([]interface{}, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	normalized := filter.Clone()
	if id, ok := filter.ID(); ok {
		parsed, err := ParseUUID(id)
		if err != nil {
			return nil, err
		}
		normalized[record.PrimaryKey] = parsed.String()
	}

	columns := sortedKeys(normalized)

	sb.WriteString(" WHERE ")
	args := make([]interface{}, 0, len(columns))
	clauses := make([]string, 0, len(columns))
	for i, col := range columns {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i+1))
		args = append(args, normalized[col])
	}
	sb.WriteString(strings.Join(clauses, " AND "))

	return args, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
