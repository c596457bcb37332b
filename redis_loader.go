package cache

import (
	"context"
	"strings"
)

// globEscaper quotes the characters SCAN MATCH treats as wildcards.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// fetchSnapshotNames scans every key under KeyPrefix and returns the names
// with the prefix stripped.
func (s *RedisSerializer) fetchSnapshotNames(ctx context.Context) ([]string, error) {
	var cursor uint64
	var err error

	keyPattern := "*"
	if s.Options.KeyPrefix != "" {
		keyPattern = globEscaper.Replace(s.Options.KeyPrefix) + ":*"
	}

	var names []string

	for {
		var scanKeys []string
		scanKeys, cursor, err = s.Client.Scan(ctx, cursor, keyPattern, s.Options.GetScanCount()).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range scanKeys {
			if s.Options.KeyPrefix != "" {
				key = strings.TrimPrefix(key, s.Options.KeyPrefix+":")
			}
			names = append(names, key)
		}

		if cursor == 0 {
			break
		}
	}

	return names, nil
}
