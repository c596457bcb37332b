package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	stringCacheKey := &StringCacheKey{}
	assert.Equal(t, "foo", stringCacheKey.Marshal("foo"))
	key, err := stringCacheKey.Unmarshal("foo")
	assert.Nil(t, err)
	assert.Equal(t, "foo", key)

	intCacheKey := &IntCacheKey{}
	assert.Equal(t, "1", intCacheKey.Marshal(1))
	keyInt, err := intCacheKey.Unmarshal("1")
	assert.Nil(t, err)
	assert.Equal(t, 1, keyInt)

	_, err = intCacheKey.Unmarshal("one")
	assert.NotNil(t, err)
}

func TestStaticName(t *testing.T) {
	name := StaticName("cache_42.json")
	assert.Equal(t, "cache_42.json", name(1000, "some-id"))
	assert.Equal(t, "cache_42.json", name(0, ""))
}

func TestSnapshotTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		stamp int64
		ok    bool
	}{
		{"cache_1000.json", 1000, true},
		{"cache_1700000000000.msgpack", 1700000000000, true},
		{"cache_7", 7, true},
		{"cache_.json", 0, false},
		{"cache_abc.json", 0, false},
		{"snapshot.json", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp, ok := SnapshotTimestamp(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.stamp, stamp)
		})
	}
}

func TestSnapshotPattern(t *testing.T) {
	pattern := SnapshotPattern("json")
	assert.True(t, pattern.MatchString("cache_1000.json"))
	assert.True(t, pattern.MatchString(SnapshotFileName(1700000000000, "json")))
	assert.False(t, pattern.MatchString("cache_1000.msgpack"))
	assert.False(t, pattern.MatchString(".cache_1000.json.0d5c.tmp"))
	assert.False(t, pattern.MatchString("cache_abc.json"))
	assert.False(t, pattern.MatchString("cache_1000xjson"))
}

func TestLatestSnapshotName(t *testing.T) {
	pattern := SnapshotPattern("json")

	name, ok := latestSnapshotName([]string{"cache_99.json", "cache_1000.json", "cache_500.json", "notes.txt"}, pattern)
	assert.True(t, ok)
	assert.Equal(t, "cache_1000.json", name)

	_, ok = latestSnapshotName([]string{"notes.txt"}, pattern)
	assert.False(t, ok)

	_, ok = latestSnapshotName(nil, pattern)
	assert.False(t, ok)
}
