package cache

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

type LocalCache[K comparable, V any] struct {
	Options *LocalCacheOptions[K]

	mu        sync.Mutex
	entries   *simplelru.LRU[string, *CacheEntry[K, V]]
	size      int
	lastStamp int64

	callbacks   []func(CacheEvent[K, V])
	callbacksMu sync.RWMutex

	writesWg sync.WaitGroup
	restored chan struct{}

	clock  clock.Clock
	logger *zap.Logger
}

// Options passed to NewLocalCache
//
// TTL: Default time to live for entries set without an explicit TTL. Set to 0 (Infinite) to disable expiration
// Size: Maximum number of entries in the cache. Set to 0 for unlimited size
// Serializer: Enables restore on start and a snapshot after every mutation. Nil keeps the cache in memory only
type LocalCacheOptions[K comparable] struct {
	TTL        time.Duration
	Size       int
	CacheKey   CacheKey[K]
	Serializer Serializer
	Clock      clock.Clock
	Logger     *zap.Logger
}

func (o *LocalCacheOptions[K]) GetTTL() time.Duration {
	return o.TTL
}

func (o *LocalCacheOptions[K]) GetSize() int {
	return o.Size
}

func (o *LocalCacheOptions[K]) GetCacheKey() CacheKey[K] {
	return o.CacheKey
}

func NewLocalCache[K comparable, V any](options *LocalCacheOptions[K]) *LocalCache[K, V] {
	if options.CacheKey == nil {
		panic("CacheKey must be provided")
	}

	size := options.Size
	if size <= 0 {
		size = math.MaxInt
	}
	entries, err := simplelru.NewLRU[string, *CacheEntry[K, V]](size, nil)
	if err != nil {
		panic(err)
	}

	c := &LocalCache[K, V]{
		Options:   options,
		entries:   entries,
		size:      size,
		lastStamp: -1,
		restored:  make(chan struct{}),
		clock:     options.Clock,
		logger:    options.Logger,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	if options.Serializer == nil {
		close(c.restored)
	} else {
		go c.restore()
	}

	return c
}

// Has reports whether key has an entry, expired or not. It never evicts.
func (c *LocalCache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(c.Options.CacheKey.Marshal(key))
}

// Get evicts every expired entry and then looks key up.
func (c *LocalCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	events := c.evictExpiredLocked()
	entry, ok := c.entries.Get(c.Options.CacheKey.Marshal(key))
	c.mu.Unlock()

	c.dispatch(events)

	if !ok {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

func (c *LocalCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.Options.TTL)
}

func (c *LocalCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	entry := &CacheEntry[K, V]{
		Key:   key,
		Value: value,
		TTL:   ttl,
	}

	c.mu.Lock()
	entry.Created = c.clock.Now()
	events := []CacheEvent[K, V]{{Entry: entry, Type: CacheEventSet}}

	stringKey := c.Options.CacheKey.Marshal(key)
	if !c.entries.Contains(stringKey) && c.entries.Len() >= c.size {
		if _, oldest, ok := c.entries.GetOldest(); ok {
			events = append(events, CacheEvent[K, V]{Entry: oldest, Type: CacheEventEvict})
		}
	}
	c.entries.Add(stringKey, entry)
	c.persistLocked()
	c.mu.Unlock()

	c.dispatch(events)
}

func (c *LocalCache[K, V]) Delete(key K) {
	c.mu.Lock()
	stringKey := c.Options.CacheKey.Marshal(key)
	entry, ok := c.entries.Peek(stringKey)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.entries.Remove(stringKey)
	c.persistLocked()
	c.mu.Unlock()

	c.dispatch([]CacheEvent[K, V]{{Entry: entry, Type: CacheEventRemove}})
}

// RemovePrefix deletes every entry whose marshalled key starts with prefix
// and returns how many were removed.
func (c *LocalCache[K, V]) RemovePrefix(prefix string) int {
	c.mu.Lock()
	var events []CacheEvent[K, V]
	for _, stringKey := range c.entries.Keys() {
		if !strings.HasPrefix(stringKey, prefix) {
			continue
		}
		if entry, ok := c.entries.Peek(stringKey); ok {
			c.entries.Remove(stringKey)
			events = append(events, CacheEvent[K, V]{Entry: entry, Type: CacheEventRemove})
		}
	}
	if len(events) > 0 {
		c.persistLocked()
	}
	c.mu.Unlock()

	c.dispatch(events)
	return len(events)
}

func (c *LocalCache[K, V]) Clear() {
	c.mu.Lock()
	c.entries.Purge()
	c.persistLocked()
	c.mu.Unlock()

	c.dispatch([]CacheEvent[K, V]{{Type: CacheEventClear}})
}

func (c *LocalCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Entries returns a copy of every entry, least recently used first.
func (c *LocalCache[K, V]) Entries() []CacheEntry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]CacheEntry[K, V], 0, c.entries.Len())
	for _, stringKey := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(stringKey); ok {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func (c *LocalCache[K, V]) AddCallback(callback func(CacheEvent[K, V])) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// Restored is closed once the startup restore has finished, successfully or
// not. Without a Serializer it is closed from the start.
func (c *LocalCache[K, V]) Restored() <-chan struct{} {
	return c.restored
}

// Flush waits for every snapshot write started so far. Mutations block until
// it returns.
func (c *LocalCache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writesWg.Wait()
}

// Close waits for the startup restore and all pending snapshot writes. The
// cache stays usable afterwards.
func (c *LocalCache[K, V]) Close() {
	<-c.restored
	c.Flush()
}

// evictExpiredLocked removes every expired entry and persists the resulting
// mapping.
func (c *LocalCache[K, V]) evictExpiredLocked() []CacheEvent[K, V] {
	now := c.clock.Now()

	var events []CacheEvent[K, V]
	for _, stringKey := range c.entries.Keys() {
		entry, ok := c.entries.Peek(stringKey)
		if !ok || !entry.Expired(now) {
			continue
		}
		c.entries.Remove(stringKey)
		events = append(events, CacheEvent[K, V]{Entry: entry, Type: CacheEventExpire})
	}

	c.persistLocked()
	return events
}

func (c *LocalCache[K, V]) dispatch(events []CacheEvent[K, V]) {
	if len(events) == 0 {
		return
	}
	// callbacks may register further callbacks
	c.callbacksMu.RLock()
	callbacks := c.callbacks
	c.callbacksMu.RUnlock()

	for _, event := range events {
		for _, callback := range callbacks {
			callback(event)
		}
	}
}

// Compile-time check
var _ Cache[string, string] = (*LocalCache[string, string])(nil)
