package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tckz/go-visit-counter/internal/config"
	"github.com/tckz/go-visit-counter/internal/counter"
	"github.com/tckz/go-visit-counter/internal/log"
	"github.com/tckz/go-visit-counter/internal/metrics"
	"github.com/tckz/go-visit-counter/internal/server"
	"github.com/tckz/go-visit-counter/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optLogLevel        = flag.String("log-level", "info", "debug|info|warn|error")
	optLogEncoding     = flag.String("log-encoding", "json", "json|console")
	optLogOutput       = flag.String("log-output", "stderr", "Comma separated log destinations, stderr|stdout|/path/to/file")
	optEnvFile         = flag.String("env-file", ".env", "path/to/.env, ignored when missing")
	optShutdownTimeout = flag.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
)

func init() {
	flag.Parse()

	logger = log.Must(log.NewLogger(
		log.WithLogLevel(*optLogLevel),
		log.WithEncoding(*optLogEncoding),
		log.WithOutputPaths(strings.Split(*optLogOutput, ",")...),
	)).Sugar().With(zap.String("app", myName))
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)
	defer logger.Infof("done")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		logger.Fatalf("*** run: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*optEnvFile)
	if err != nil {
		return err
	}

	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Errorf("close store: %v", err)
		}
	}()
	logger.Infof("store=%s, counterID=%s, nativeIncrement=%t", cfg.Store, cfg.CounterID, cfg.NativeIncrement)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := counter.NewService(st,
		counter.WithID(cfg.CounterID),
		counter.WithMaxAttempts(cfg.MaxAttempts),
		counter.WithBackoff(cfg.InitialBackoff, cfg.MaxBackoff),
		counter.WithStoreTimeout(cfg.StoreTimeout),
		counter.WithNativeIncrement(cfg.NativeIncrement),
		counter.WithLogger(logger),
		counter.WithMetrics(metrics.New(reg)),
	)

	gin.SetMode(gin.ReleaseMode)
	router := server.New(svc,
		server.WithAllowOrigin(cfg.CORSAllowOrigin),
		server.WithLogger(logger),
		server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Infof("listen=%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Infof("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), *optShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	return eg.Wait()
}
