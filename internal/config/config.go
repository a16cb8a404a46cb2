package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreDatastore = "datastore"
	StoreRedis     = "redis"
	StoreMongo     = "mongo"
	StoreCosmos    = "cosmos"
)

type Config struct {
	Port            string
	CORSAllowOrigin string

	CounterID       string
	Store           string
	NativeIncrement bool
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	StoreTimeout    time.Duration

	Datastore Datastore
	Redis     Redis
	Mongo     Mongo
	Cosmos    Cosmos
}

type Datastore struct {
	ProjectID string
	Namespace string
	Kind      string
}

type Redis struct {
	Addr      string
	KeyPrefix string
}

type Mongo struct {
	URI        string
	Database   string
	Collection string
}

type Cosmos struct {
	ConnectionString string
	Database         string
	Container        string
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOW_ORIGIN", "*")
	v.SetDefault("COUNTER_ID", "1")
	v.SetDefault("COUNTER_STORE", StoreMemory)
	v.SetDefault("COUNTER_NATIVE_INCREMENT", false)
	v.SetDefault("COUNTER_MAX_ATTEMPTS", 5)
	v.SetDefault("COUNTER_INITIAL_BACKOFF", "10ms")
	v.SetDefault("COUNTER_MAX_BACKOFF", "200ms")
	v.SetDefault("COUNTER_STORE_TIMEOUT", "5s")
	v.SetDefault("DATASTORE_KIND", "Counter")
	v.SetDefault("REDIS_KEY_PREFIX", "visit-counter:")
	v.SetDefault("MONGO_DB", "AzureResume")
	v.SetDefault("MONGO_COLLECTION", "Counter")
	v.SetDefault("COSMOS_DATABASE", "AzureResume")
	v.SetDefault("COSMOS_CONTAINER", "Counter")
}

// Load reads the configuration from the environment. Files in envFiles are
// loaded first when they exist; variables already set are not overridden.
func Load(envFiles ...string) (*Config, error) {
	for _, fn := range envFiles {
		if fn == "" {
			continue
		}
		if err := godotenv.Load(fn); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("godotenv.Load: %s: %w", fn, err)
		}
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:            v.GetString("PORT"),
		CORSAllowOrigin: v.GetString("CORS_ALLOW_ORIGIN"),
		CounterID:       v.GetString("COUNTER_ID"),
		Store:           strings.ToLower(v.GetString("COUNTER_STORE")),
		NativeIncrement: v.GetBool("COUNTER_NATIVE_INCREMENT"),
		MaxAttempts:     v.GetInt("COUNTER_MAX_ATTEMPTS"),
		InitialBackoff:  v.GetDuration("COUNTER_INITIAL_BACKOFF"),
		MaxBackoff:      v.GetDuration("COUNTER_MAX_BACKOFF"),
		StoreTimeout:    v.GetDuration("COUNTER_STORE_TIMEOUT"),
		Datastore: Datastore{
			ProjectID: v.GetString("PROJECT_ID"),
			Namespace: v.GetString("DATASTORE_NAMESPACE"),
			Kind:      v.GetString("DATASTORE_KIND"),
		},
		Redis: Redis{
			Addr:      v.GetString("REDIS_ADDR"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		Mongo: Mongo{
			URI:        v.GetString("MONGO_URI"),
			Database:   v.GetString("MONGO_DB"),
			Collection: v.GetString("MONGO_COLLECTION"),
		},
		Cosmos: Cosmos{
			ConnectionString: v.GetString("COSMOS_CONNECTION_STRING"),
			Database:         v.GetString("COSMOS_DATABASE"),
			Container:        v.GetString("COSMOS_CONTAINER"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.CounterID == "" {
		errs = append(errs, errors.New("COUNTER_ID must not be empty"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("COUNTER_MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts))
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 || c.StoreTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}

	switch c.Store {
	case StoreMemory:
	case StoreDatastore:
		if c.Datastore.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID must be specified for datastore"))
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR must be specified for redis"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI must be specified for mongo"))
		}
	case StoreCosmos:
		if c.Cosmos.ConnectionString == "" {
			errs = append(errs, errors.New("COSMOS_CONNECTION_STRING must be specified for cosmos"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown COUNTER_STORE: %s", c.Store))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
