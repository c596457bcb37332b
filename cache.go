package cache

import (
	"time"
)

// Infinite marks an entry that never expires.
const Infinite time.Duration = 0

// DefaultTTL is the time to live most callers in front of a rate limited
// source want. It is not applied implicitly: a zero LocalCacheOptions.TTL
// means Infinite.
const DefaultTTL = 15 * time.Minute

type CacheEntry[K comparable, V any] struct {
	Key     K
	Value   V
	TTL     time.Duration
	Created time.Time
}

// ExpiresAt returns the absolute expiry of the entry, or the zero time for
// Infinite entries.
func (e *CacheEntry[K, V]) ExpiresAt() time.Time {
	if e.TTL == Infinite {
		return time.Time{}
	}
	return e.Created.Add(e.TTL)
}

// Expired reports whether the entry's expiry is at or before now.
func (e *CacheEntry[K, V]) Expired(now time.Time) bool {
	if e.TTL == Infinite {
		return false
	}
	return !e.ExpiresAt().After(now)
}

type CacheEventType int

const (
	CacheEventSet CacheEventType = iota
	CacheEventRemove
	CacheEventExpire
	CacheEventEvict
	CacheEventClear
	CacheEventRestore
)

func (t CacheEventType) String() string {
	switch t {
	case CacheEventSet:
		return "set"
	case CacheEventRemove:
		return "remove"
	case CacheEventExpire:
		return "expire"
	case CacheEventEvict:
		return "evict"
	case CacheEventClear:
		return "clear"
	case CacheEventRestore:
		return "restore"
	default:
		return "unknown"
	}
}

// CacheEvent is delivered to callbacks registered with AddCallback. Entry is
// nil for CacheEventClear and CacheEventRestore.
type CacheEvent[K comparable, V any] struct {
	Entry *CacheEntry[K, V]
	Type  CacheEventType
}

type Cache[K comparable, V any] interface {
	Has(K) bool
	Get(K) (V, bool)
	Set(K, V)
	SetWithTTL(K, V, time.Duration)
	Delete(K)
	Clear()
}
