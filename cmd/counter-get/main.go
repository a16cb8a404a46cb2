package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/tckz/go-visit-counter/internal/config"
	"github.com/tckz/go-visit-counter/internal/log"
	"github.com/tckz/go-visit-counter/internal/store"
	"go.uber.org/zap"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optEnvFile  = flag.String("env-file", ".env", "path/to/.env, ignored when missing")
	optTimeout  = flag.Duration("timeout", 30*time.Second, "")
)

func init() {
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
	defer cancel()

	cfg, err := config.Load(*optEnvFile)
	if err != nil {
		logger.Fatalf("*** config.Load: %v", err)
	}

	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("*** store.Open: %v", err)
	}
	defer closeStore()

	c, tok, err := st.Load(ctx, cfg.CounterID)
	if err != nil {
		logger.Errorf("Load: %v", err)
		return
	}
	logger.Debugf("token=%s", tok)

	if err := json.NewEncoder(os.Stdout).Encode(c); err != nil {
		logger.Errorf("Encode: %v", err)
	}
}
