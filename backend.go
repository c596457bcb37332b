package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	ErrDecode           = errors.New("go-snapcache: invalid snapshot data")
	ErrIO               = errors.New("go-snapcache: snapshot i/o failed")
	ErrSnapshotNotFound = errors.New("go-snapcache: no snapshot found")
)

type CacheKey[K comparable] interface {
	Marshal(K) string
	Unmarshal(string) (K, error)
}

type StringCacheKey struct {
}

func (k *StringCacheKey) Marshal(key string) string {
	return key
}

func (k *StringCacheKey) Unmarshal(data string) (string, error) {
	return data, nil
}

type IntCacheKey struct {
}

func (k *IntCacheKey) Marshal(key int) string {
	return fmt.Sprintf("%d", key)
}

func (k *IntCacheKey) Unmarshal(data string) (int, error) {
	return strconv.Atoi(data)
}

// NameBuilder builds a snapshot name from the serializer's current time in
// unix milliseconds and a random id.
type NameBuilder func(timestamp int64, id string) string

// StaticName returns a NameBuilder that ignores its arguments.
func StaticName(name string) NameBuilder {
	return func(int64, string) string {
		return name
	}
}

// Serializer encodes snapshots and stores them under a name. It holds no
// cache state; LocalCache is its only caller.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
	FileExtension() string
	// SaveToFile stores encoded under the name built by name and returns it.
	SaveToFile(ctx context.Context, encoded []byte, name NameBuilder) (string, error)
	// RetrieveFromFile returns false when the snapshot is missing or
	// unreadable.
	RetrieveFromFile(ctx context.Context, name string) ([]byte, bool)
	// FindFileName returns the matching name with the largest embedded
	// timestamp.
	FindFileName(ctx context.Context, pattern *regexp.Regexp) (string, bool)
}
