package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/tckz/go-visit-counter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Seeder      = (*Store)(nil)
)

const (
	fieldCount   = "count"
	fieldVersion = "version"
)

// Missing key yields nil, otherwise the count before the increment.
var fetchAndIncrement = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local n = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HINCRBY', KEYS[1], 'version', 1)
return n - 1
`)

var seed = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'count', ARGV[1], 'version', 1)
return 1
`)

// Store keeps each counter in a hash {count, version} under prefix+id.
type Store struct {
	prefix string
	client redis.UniversalClient
}

func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{prefix: prefix, client: client}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Load(ctx context.Context, id string) (*counter.Counter, counter.Token, error) {
	m, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("%w: redis.HGetAll: %w", counter.ErrStoreUnavailable, err)
	}
	if len(m) == 0 {
		return nil, "", fmt.Errorf("redisstore.Load: id=%s: %w", id, counter.ErrNotFound)
	}

	n, err := strconv.ParseInt(m[fieldCount], 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("redisstore.Load: id=%s, count=%q: %w", id, m[fieldCount], err)
	}
	return &counter.Counter{ID: id, Count: n}, counter.Token(versionOf(m)), nil
}

// versionOf treats a hash written without a version field, e.g. {count} seeded
// by hand, as version 0.
func versionOf(m map[string]string) string {
	if v, ok := m[fieldVersion]; ok && v != "" {
		return v
	}
	return "0"
}

func (s *Store) Save(ctx context.Context, c *counter.Counter, expected counter.Token) error {
	key := s.key(c.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		m, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: redis.HGetAll: %w", counter.ErrStoreUnavailable, err)
		}
		if len(m) == 0 {
			return counter.ErrConflict
		}
		v := versionOf(m)
		if counter.Token(v) != expected {
			return counter.ErrConflict
		}
		ver, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("redisstore.Save: version=%q: %w", v, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldCount, c.Count, fieldVersion, ver+1)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, counter.ErrConflict):
		return fmt.Errorf("redisstore.Save: id=%s, token=%s: %w", c.ID, expected, counter.ErrConflict)
	case counter.IsStoreError(err):
		return err
	default:
		return fmt.Errorf("%w: redis.Watch: %w", counter.ErrStoreUnavailable, err)
	}
}

func (s *Store) FetchAndIncrement(ctx context.Context, id string) (*counter.Counter, error) {
	n, err := fetchAndIncrement.Run(ctx, s.client, []string{s.key(id)}).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redisstore.FetchAndIncrement: id=%s: %w", id, counter.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("%w: redis.Eval: %w", counter.ErrStoreUnavailable, err)
	}
	return &counter.Counter{ID: id, Count: n}, nil
}

func (s *Store) Seed(ctx context.Context, c *counter.Counter) (bool, error) {
	n, err := seed.Run(ctx, s.client, []string{s.key(c.ID)}, c.Count).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: redis.Eval: %w", counter.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}
