package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordID(t *testing.T) {
	r := Record{"id": "abc123", "name": "Ada"}

	id, ok := r.ID()
	assert.True(t, ok)
	assert.Equal(t, "abc123", id)

	_, ok = Record{"name": "Ada"}.ID()
	assert.False(t, ok)

	// Non-string ids are not exposed through the generic accessor.
	_, ok = Record{"id": 42}.ID()
	assert.False(t, ok)
}

func TestRecordMerge(t *testing.T) {
	base := Record{"id": "1", "name": "Ada", "lang": "en"}
	merged := base.Merge(Record{"lang": "fr", "age": 36})

	assert.Equal(t, Record{"id": "1", "name": "Ada", "lang": "fr", "age": 36}, merged)

	// Merge never mutates the receiver.
	assert.Equal(t, "en", base["lang"])
	_, present := base["age"]
	assert.False(t, present)
}

func TestRecordMergeDoesNotOverwritePrimaryKey(t *testing.T) {
	base := Record{"id": "1", "name": "Ada"}
	merged := base.Merge(Record{"id": "2", "name": "Grace"})

	assert.Equal(t, "1", merged["id"])
	assert.Equal(t, "Grace", merged["name"])
}

func TestRecordCloneIsolatesNestedValues(t *testing.T) {
	base := Record{
		"meta": map[string]interface{}{"source": "test"},
		"tags": []interface{}{"a", "b"},
	}

	clone := base.Clone()
	clone["meta"].(map[string]interface{})["source"] = "mutated"
	clone["tags"].([]interface{})[0] = "z"

	assert.Equal(t, "test", base["meta"].(map[string]interface{})["source"])
	assert.Equal(t, "a", base["tags"].([]interface{})[0])
}

func TestFilterWithoutID(t *testing.T) {
	f := Filter{"id": "abc", "name": "Ada"}

	id, ok := f.ID()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	stripped := f.WithoutID()
	assert.Equal(t, Filter{"name": "Ada"}, stripped)

	// Original filter is untouched.
	_, ok = f.ID()
	assert.True(t, ok)
}
