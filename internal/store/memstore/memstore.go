package memstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/tckz/go-visit-counter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Seeder      = (*Store)(nil)
)

type document struct {
	count   int64
	version int64
}

// Store keeps counters in process memory. Versions start at 1 and grow with
// every write.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache

	saves int64
}

func New() *Store {
	return &Store{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *Store) get(id string) (document, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return document{}, false
	}
	return v.(document), true
}

func (s *Store) Load(ctx context.Context, id string) (*counter.Counter, counter.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("%w: memstore.Load: %w", counter.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.get(id)
	if !ok {
		return nil, "", fmt.Errorf("memstore.Load: id=%s: %w", id, counter.ErrNotFound)
	}
	return &counter.Counter{ID: id, Count: doc.count}, token(doc.version), nil
}

func (s *Store) Save(ctx context.Context, c *counter.Counter, expected counter.Token) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: memstore.Save: %w", counter.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.get(c.ID)
	if !ok || token(doc.version) != expected {
		return fmt.Errorf("memstore.Save: id=%s, token=%s: %w", c.ID, expected, counter.ErrConflict)
	}
	s.cache.Set(c.ID, document{count: c.Count, version: doc.version + 1}, cache.NoExpiration)
	s.saves++
	return nil
}

func (s *Store) FetchAndIncrement(ctx context.Context, id string) (*counter.Counter, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: memstore.FetchAndIncrement: %w", counter.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.get(id)
	if !ok {
		return nil, fmt.Errorf("memstore.FetchAndIncrement: id=%s: %w", id, counter.ErrNotFound)
	}
	s.cache.Set(id, document{count: doc.count + 1, version: doc.version + 1}, cache.NoExpiration)
	s.saves++
	return &counter.Counter{ID: id, Count: doc.count}, nil
}

func (s *Store) Seed(ctx context.Context, c *counter.Counter) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: memstore.Seed: %w", counter.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cache.Add(c.ID, document{count: c.Count, version: 1}, cache.NoExpiration)
	return err == nil, nil
}

// Saves is the number of successful writes.
func (s *Store) Saves() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func token(v int64) counter.Token {
	return counter.Token(strconv.FormatInt(v, 10))
}
