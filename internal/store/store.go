// Package store opens the counter backend selected by the configuration.
package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/redis/go-redis/v9"
	"github.com/tckz/go-visit-counter/internal/config"
	"github.com/tckz/go-visit-counter/internal/counter"
	"github.com/tckz/go-visit-counter/internal/store/cosmosstore"
	"github.com/tckz/go-visit-counter/internal/store/dsstore"
	"github.com/tckz/go-visit-counter/internal/store/memstore"
	"github.com/tckz/go-visit-counter/internal/store/mongostore"
	"github.com/tckz/go-visit-counter/internal/store/redisstore"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Backend is a store that also supports seeding and a native increment.
type Backend interface {
	counter.Store
	counter.Incrementer
	counter.Seeder
}

var (
	_ Backend = (*memstore.Store)(nil)
	_ Backend = (*dsstore.Store)(nil)
	_ Backend = (*redisstore.Store)(nil)
	_ Backend = (*mongostore.Store)(nil)
	_ Backend = (*cosmosstore.Store)(nil)
)

func nopClose() error { return nil }

// Open returns the backend and a function releasing its connections.
func Open(ctx context.Context, cfg *config.Config) (Backend, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memstore.New(), nopClose, nil

	case config.StoreDatastore:
		cl, err := datastore.NewClient(ctx, cfg.Datastore.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore.NewClient: %w", err)
		}
		return dsstore.New(cl, cfg.Datastore.Kind, cfg.Datastore.Namespace), cl.Close, nil

	case config.StoreRedis:
		cl := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        []string{cfg.Redis.Addr},
			DialTimeout:  time.Second * 2,
			ReadTimeout:  time.Second * 2,
			WriteTimeout: time.Second * 2,
			PoolSize:     200,
			PoolTimeout:  time.Second * 5,
		})
		return redisstore.New(cl, cfg.Redis.KeyPrefix), cl.Close, nil

	case config.StoreMongo:
		cl, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo.Connect: %w", err)
		}
		closer := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return cl.Disconnect(ctx)
		}
		coll := cl.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		return mongostore.New(coll), closer, nil

	case config.StoreCosmos:
		s, err := cosmosstore.NewFromConnectionString(cfg.Cosmos.ConnectionString, cfg.Cosmos.Database, cfg.Cosmos.Container)
		if err != nil {
			return nil, nil, err
		}
		return s, nopClose, nil

	default:
		return nil, nil, fmt.Errorf("unknown store: %s", cfg.Store)
	}
}
