package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveServerValuesTopLevel(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	data := map[string]interface{}{
		"title":     "hello",
		"createdAt": ServerTimestamp(),
	}

	ResolveServerValues(data, now)

	assert.Equal(t, "hello", data["title"])
	assert.Equal(t, int64(1700000000000), data["createdAt"])
}

func TestResolveServerValuesNested(t *testing.T) {
	now := time.UnixMilli(42)
	data := map[string]interface{}{
		"meta": map[string]interface{}{
			"updatedAt": ServerTimestamp(),
			"tags":      []interface{}{"a", ServerTimestamp()},
		},
	}

	ResolveServerValues(data, now)

	meta := data["meta"].(map[string]interface{})
	assert.Equal(t, int64(42), meta["updatedAt"])
	tags := meta["tags"].([]interface{})
	assert.Equal(t, "a", tags[0])
	assert.Equal(t, int64(42), tags[1])
}

func TestResolveServerValuesSingleClock(t *testing.T) {
	now := time.UnixMilli(99)
	data := map[string]interface{}{
		"a": ServerTimestamp(),
		"b": ServerTimestamp(),
	}

	ResolveServerValues(data, now)

	assert.Equal(t, data["a"], data["b"])
}

func TestResolveServerValuesUnknownSentinelPassesThrough(t *testing.T) {
	data := map[string]interface{}{
		"v": map[string]interface{}{".sv": "increment"},
	}

	ResolveServerValues(data, time.Now())

	assert.Equal(t, map[string]interface{}{".sv": "increment"}, data["v"])
}

func TestResolveServerValuesIgnoresOrdinaryMaps(t *testing.T) {
	data := map[string]interface{}{
		"obj": map[string]interface{}{".sv": "timestamp", "extra": true},
	}

	ResolveServerValues(data, time.Now())

	// Two keys means this is not a placeholder.
	obj := data["obj"].(map[string]interface{})
	assert.Equal(t, "timestamp", obj[".sv"])
	assert.Equal(t, true, obj["extra"])
}
