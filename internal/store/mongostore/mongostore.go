package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tckz/go-visit-counter/internal/counter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ counter.Store       = (*Store)(nil)
	_ counter.Incrementer = (*Store)(nil)
	_ counter.Seeder      = (*Store)(nil)
)

type document struct {
	ID      string `bson:"_id"`
	Count   int64  `bson:"count"`
	Version int64  `bson:"version"`
}

type Store struct {
	coll *mongo.Collection
}

func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

func (s *Store) Load(ctx context.Context, id string) (*counter.Counter, counter.Token, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, "", fmt.Errorf("mongostore.Load: id=%s: %w", id, counter.ErrNotFound)
		}
		return nil, "", fmt.Errorf("%w: mongo.FindOne: %w", counter.ErrStoreUnavailable, err)
	}
	return &counter.Counter{ID: doc.ID, Count: doc.Count}, token(doc.Version), nil
}

func (s *Store) Save(ctx context.Context, c *counter.Counter, expected counter.Token) error {
	ver, err := strconv.ParseInt(string(expected), 10, 64)
	if err != nil {
		return fmt.Errorf("mongostore.Save: id=%s, token=%s: %w", c.ID, expected, counter.ErrConflict)
	}

	res, err := s.coll.ReplaceOne(ctx, versionFilter(c.ID, ver), document{ID: c.ID, Count: c.Count, Version: ver + 1})
	if err != nil {
		return fmt.Errorf("%w: mongo.ReplaceOne: %w", counter.ErrStoreUnavailable, err)
	}
	// either deleted or written by someone else since the load
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongostore.Save: id=%s, token=%s: %w", c.ID, expected, counter.ErrConflict)
	}
	return nil
}

func (s *Store) FetchAndIncrement(ctx context.Context, id string) (*counter.Counter, error) {
	filter := bson.M{"_id": id}
	update := bson.M{
		"$inc": bson.M{"count": 1, "version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var doc document
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("mongostore.FetchAndIncrement: id=%s: %w", id, counter.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: mongo.FindOneAndUpdate: %w", counter.ErrStoreUnavailable, err)
	}
	return &counter.Counter{ID: doc.ID, Count: doc.Count}, nil
}

func (s *Store) Seed(ctx context.Context, c *counter.Counter) (bool, error) {
	_, err := s.coll.InsertOne(ctx, document{ID: c.ID, Count: c.Count, Version: 1})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: mongo.InsertOne: %w", counter.ErrStoreUnavailable, err)
	}
	return true, nil
}

// versionFilter matches the document at version ver. A document written
// without a version field, e.g. {_id, count} created by hand, is at version 0.
func versionFilter(id string, ver int64) bson.M {
	if ver == 0 {
		return bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{"version": ver},
				bson.M{"version": bson.M{"$exists": false}},
			},
		}
	}
	return bson.M{"_id": id, "version": ver}
}

func token(v int64) counter.Token {
	return counter.Token(strconv.FormatInt(v, 10))
}
