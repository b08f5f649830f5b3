// Package redis implements store.Store on Redis.
//
// Each pending record is a JSON string key written with a TTL, so Redis
// itself reclaims undelivered records once the retention window elapses.
// A sorted set scored by receive time makes the records enumerable without
// SCAN; index members whose value key has expired are pruned lazily.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	relaystore "github.com/xraph/grantrelay/store"
)

// compile-time interface check
var _ relaystore.Store = (*Store)(nil)

// DefaultTTL is the retention window applied when none is configured.
const DefaultTTL = 24 * time.Hour

// mgetBatch caps the number of keys fetched per MGET round trip.
const mgetBatch = 100

// Store implements store.Store using Redis.
type Store struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Option configures a Redis Store.
type Option func(*Store)

// WithTTL sets the retention window for records and discard entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key namespace (default "grantrelay:").
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a new Redis store on top of an existing client. The store
// takes ownership of the client: Close closes it.
func New(rdb goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the retention window applied to records.
func (s *Store) TTL() time.Duration { return s.ttl }

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// scoreFromTime converts a time.Time to a sorted set score (unix seconds as float64).
func scoreFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// formatScore renders a score for ZRANGEBYSCORE-style arguments.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// remaining returns how long an item created at t still has to live.
func (s *Store) remaining(t time.Time) time.Duration {
	return t.Add(s.ttl).Sub(now())
}

// pruneIndex drops index members older than the retention window.
func (s *Store) pruneIndex(ctx context.Context, indexKey string) error {
	cutoff := formatScore(scoreFromTime(now().Add(-s.ttl)))
	if err := s.rdb.ZRemRangeByScore(ctx, indexKey, "-inf", cutoff).Err(); err != nil {
		return fmt.Errorf("grantrelay/redis: prune index: %w", err)
	}
	return nil
}

// fetchValues loads the value keys for ids in batches. The returned slice is
// aligned with ids; a nil entry means the key no longer exists. Index
// members whose key is gone are removed from indexKey.
func (s *Store) fetchValues(ctx context.Context, indexKey string, ids []string, keyFn func(string) string) ([][]byte, error) {
	values := make([][]byte, len(ids))
	var stale []any

	for start := 0; start < len(ids); start += mgetBatch {
		end := min(start+mgetBatch, len(ids))

		keys := make([]string, 0, end-start)
		for _, entryID := range ids[start:end] {
			keys = append(keys, keyFn(entryID))
		}

		raws, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("grantrelay/redis: mget: %w", err)
		}

		for i, raw := range raws {
			str, ok := raw.(string)
			if !ok {
				stale = append(stale, ids[start+i])
				continue
			}
			values[start+i] = []byte(str)
		}
	}

	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("grantrelay/redis: prune stale members: %w", err)
		}
	}

	return values, nil
}
