package dsstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/datastore"
	"github.com/tckz/go-visit-counter/internal/counter"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Seeder      = (*Store)(nil)
)

// Entity is the persisted form of a counter. Version grows with every write.
type Entity struct {
	Count   int64 `datastore:"count"`
	Version int64 `datastore:"version"`
}

type Store struct {
	client    *datastore.Client
	kind      string
	namespace string
}

func New(client *datastore.Client, kind, namespace string) *Store {
	return &Store{client: client, kind: kind, namespace: namespace}
}

func (s *Store) key(id string) *datastore.Key {
	key := datastore.NameKey(s.kind, id, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) Load(ctx context.Context, id string) (*counter.Counter, counter.Token, error) {
	var rec Entity
	if err := s.client.Get(ctx, s.key(id), &rec); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, "", fmt.Errorf("dsstore.Load: id=%s: %w", id, counter.ErrNotFound)
		}
		return nil, "", fmt.Errorf("%w: datastore.Get: %w", counter.ErrStoreUnavailable, err)
	}
	return &counter.Counter{ID: id, Count: rec.Count}, token(rec.Version), nil
}

// Save compares the version inside a single-attempt transaction so that the
// caller owns the retry policy.
func (s *Store) Save(ctx context.Context, c *counter.Counter, expected counter.Token) error {
	key := s.key(c.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var rec Entity
		if err := tx.Get(key, &rec); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return counter.ErrConflict
			}
			return err
		}
		if token(rec.Version) != expected {
			return counter.ErrConflict
		}

		_, err := tx.Put(key, &Entity{Count: c.Count, Version: rec.Version + 1})
		return err
	}, datastore.MaxAttempts(1))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, counter.ErrConflict), errors.Is(err, datastore.ErrConcurrentTransaction):
		return fmt.Errorf("dsstore.Save: id=%s, token=%s: %w", c.ID, expected, counter.ErrConflict)
	default:
		return fmt.Errorf("%w: datastore.RunInTransaction: %w", counter.ErrStoreUnavailable, err)
	}
}

// FetchAndIncrement leaves contention retries to the datastore client.
func (s *Store) FetchAndIncrement(ctx context.Context, id string) (*counter.Counter, error) {
	key := s.key(id)
	var before Entity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		// may be called more than once
		before = Entity{}
		if err := tx.Get(key, &before); err != nil {
			return err
		}
		_, err := tx.Put(key, &Entity{Count: before.Count + 1, Version: before.Version + 1})
		return err
	})
	if err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("dsstore.FetchAndIncrement: id=%s: %w", id, counter.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: datastore.RunInTransaction: %w", counter.ErrStoreUnavailable, err)
	}
	return &counter.Counter{ID: id, Count: before.Count}, nil
}

func (s *Store) Seed(ctx context.Context, c *counter.Counter) (bool, error) {
	key := s.key(c.ID)
	alreadyExist := false
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		alreadyExist = false
		var rec Entity
		err := tx.Get(key, &rec)
		if err == nil {
			alreadyExist = true
			return nil
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		_, err = tx.Put(key, &Entity{Count: c.Count, Version: 1})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: datastore.RunInTransaction: %w", counter.ErrStoreUnavailable, err)
	}
	return !alreadyExist, nil
}

func token(v int64) counter.Token {
	return counter.Token(strconv.FormatInt(v, 10))
}
