package cache

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const snapshotPrefix = "cache_"

// maxSnapshotTTL is the largest TTL in milliseconds a time.Duration can hold.
const maxSnapshotTTL = math.MaxInt64 / int64(time.Millisecond)

// snapshotEntry is the persisted form of one CacheEntry. TTL is in
// milliseconds with 0 meaning Infinite; Created is unix milliseconds.
type snapshotEntry[V any] struct {
	Value   V     `json:"value"`
	TTL     int64 `json:"ttl"`
	Created int64 `json:"created,omitempty"`
}

type snapshot[V any] map[string]snapshotEntry[V]

func newSnapshotEntry[K comparable, V any](entry *CacheEntry[K, V]) snapshotEntry[V] {
	ttl := entry.TTL.Milliseconds()
	if ttl == 0 && entry.TTL != Infinite {
		// sub-millisecond TTLs must not turn into Infinite
		if entry.TTL > 0 {
			ttl = 1
		} else {
			ttl = -1
		}
	}
	s := snapshotEntry[V]{
		Value: entry.Value,
		TTL:   ttl,
	}
	if !entry.Created.IsZero() {
		s.Created = entry.Created.UnixMilli()
	}
	return s
}

// SnapshotFileName returns cache_<stamp>.<ext>.
func SnapshotFileName(stamp int64, ext string) string {
	return fmt.Sprintf("%s%d.%s", snapshotPrefix, stamp, ext)
}

// SnapshotPattern matches the names produced by SnapshotFileName for ext.
func SnapshotPattern(ext string) *regexp.Regexp {
	return regexp.MustCompile(`^` + snapshotPrefix + `\d+\.` + regexp.QuoteMeta(ext) + `$`)
}

// SnapshotTimestamp parses the digits following the first underscore of name.
func SnapshotTimestamp(name string) (int64, bool) {
	_, rest, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	stamp, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return stamp, true
}

// latestSnapshotName picks the name with the largest embedded timestamp among
// those matching pattern.
func latestSnapshotName(names []string, pattern *regexp.Regexp) (string, bool) {
	var (
		latest      string
		latestStamp int64 = -1
		found       bool
	)
	for _, name := range names {
		if !pattern.MatchString(name) {
			continue
		}
		stamp, ok := SnapshotTimestamp(name)
		if !ok {
			stamp = -1
		}
		if !found || stamp > latestStamp {
			latest, latestStamp, found = name, stamp, true
		}
	}
	return latest, found
}

func (c *LocalCache[K, V]) restore() {
	defer close(c.restored)

	name, entries, err := c.readLatestSnapshot(context.Background())

	var events []CacheEvent[K, V]
	c.mu.Lock()
	if stamp, ok := SnapshotTimestamp(name); ok && stamp > c.lastStamp {
		c.lastStamp = stamp
	}
	if err != nil {
		c.logger.Warn("go-snapcache: starting without restored snapshot", zap.String("file", name), zap.Error(err))
	} else {
		c.entries.Purge()
		for _, entry := range entries {
			c.entries.Add(c.Options.CacheKey.Marshal(entry.Key), entry)
		}
		c.logger.Info("go-snapcache: restored snapshot", zap.String("file", name), zap.Int("entries", len(entries)))
		events = append(events, CacheEvent[K, V]{Type: CacheEventRestore})
	}
	events = append(events, c.evictExpiredLocked()...)
	c.mu.Unlock()

	c.dispatch(events)
}

func (c *LocalCache[K, V]) readLatestSnapshot(ctx context.Context) (string, []*CacheEntry[K, V], error) {
	return LatestSnapshot[K, V](ctx, c.Options.Serializer, c.Options.CacheKey, c.logger)
}

// LatestSnapshot finds, reads and decodes the most recent snapshot held by
// serializer. Entries are returned oldest first; keys cacheKey cannot
// unmarshal are skipped. Nothing is evicted or written.
func LatestSnapshot[K comparable, V any](ctx context.Context, serializer Serializer, cacheKey CacheKey[K], logger *zap.Logger) (string, []*CacheEntry[K, V], error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name, ok := serializer.FindFileName(ctx, SnapshotPattern(serializer.FileExtension()))
	if !ok {
		return "", nil, ErrSnapshotNotFound
	}

	data, ok := serializer.RetrieveFromFile(ctx, name)
	if !ok {
		return name, nil, fmt.Errorf("%w: %s is unreadable", ErrSnapshotNotFound, name)
	}

	var doc snapshot[V]
	if err := serializer.Deserialize(data, &doc); err != nil {
		return name, nil, err
	}

	entries := make([]*CacheEntry[K, V], 0, len(doc))
	for stringKey, s := range doc {
		key, err := cacheKey.Unmarshal(stringKey)
		if err != nil {
			logger.Warn("go-snapcache: skipping snapshot entry", zap.String("key", stringKey), zap.Error(err))
			continue
		}
		if s.TTL > maxSnapshotTTL || s.TTL < -maxSnapshotTTL {
			logger.Warn("go-snapcache: skipping snapshot entry with out of range ttl", zap.String("key", stringKey), zap.Int64("ttl", s.TTL))
			continue
		}
		entries = append(entries, &CacheEntry[K, V]{
			Key:     key,
			Value:   s.Value,
			TTL:     time.Duration(s.TTL) * time.Millisecond,
			Created: time.UnixMilli(s.Created),
		})
	}

	// oldest first so the LRU order survives a restart
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})

	return name, entries, nil
}

// persistLocked encodes the whole mapping and writes it in the background.
// Names come from the cache clock and never repeat or go backwards.
func (c *LocalCache[K, V]) persistLocked() {
	serializer := c.Options.Serializer
	if serializer == nil {
		return
	}

	doc := make(snapshot[V], c.entries.Len())
	for _, stringKey := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(stringKey); ok {
			doc[stringKey] = newSnapshotEntry(entry)
		}
	}

	data, err := serializer.Serialize(doc)
	if err != nil {
		c.logger.Error("go-snapcache: failed to encode snapshot", zap.Error(err))
		return
	}

	stamp := c.clock.Now().UnixMilli()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	name := SnapshotFileName(stamp, serializer.FileExtension())

	c.writesWg.Add(1)
	go func() {
		defer c.writesWg.Done()
		if _, err := serializer.SaveToFile(context.Background(), data, StaticName(name)); err != nil {
			c.logger.Warn("go-snapcache: failed to write snapshot", zap.String("file", name), zap.Error(err))
		}
	}()
}
