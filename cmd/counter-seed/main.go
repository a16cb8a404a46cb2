package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/tckz/go-visit-counter/internal/config"
	"github.com/tckz/go-visit-counter/internal/counter"
	"github.com/tckz/go-visit-counter/internal/log"
	"github.com/tckz/go-visit-counter/internal/store"
	"go.uber.org/zap"
)

// Creates the counter document once. An existing document is left as is.

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optEnvFile  = flag.String("env-file", ".env", "path/to/.env, ignored when missing")
	optCount    = flag.Int64("count", 0, "initial count")
	optTimeout  = flag.Duration("timeout", 30*time.Second, "")
)

func init() {
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	if *optCount < 0 {
		logger.Fatalf("*** --count must not be negative.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
	defer cancel()

	cfg, err := config.Load(*optEnvFile)
	if err != nil {
		logger.Fatalf("*** config.Load: %v", err)
	}
	if cfg.Store == config.StoreMemory {
		logger.Fatalf("*** COUNTER_STORE=%s does not outlive this process", cfg.Store)
	}

	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("*** store.Open: %v", err)
	}
	defer closeStore()

	c := &counter.Counter{ID: cfg.CounterID, Count: *optCount}
	created, err := st.Seed(ctx, c)
	if err != nil {
		logger.Errorf("Seed: %v", err)
		return
	}

	if created {
		logger.Infof("created store=%s, id=%s, count=%d", cfg.Store, c.ID, c.Count)
	} else {
		logger.Infof("already exists store=%s, id=%s", cfg.Store, c.ID)
	}
}
