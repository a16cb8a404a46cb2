package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/tckz/go-visit-counter/internal/counter"
	"github.com/tckz/go-visit-counter/internal/log"
	vh "github.com/tckz/vegetahelper"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

// Hits GET /counter concurrently and fails when two visitors got the same
// number. Skipped numbers are only reported.

var (
	myName  = filepath.Base(os.Args[0])
	logger  *zap.SugaredLogger
	version string
)

var (
	optRate = &vh.RateFlag{
		Rate: &vegeta.Rate{
			Freq: 30,
			Per:  1 * time.Second,
		}}
	optDuration = flag.Duration("duration", 10*time.Second, "Duration of the test [0 = forever]")
	optOutput   = flag.String("output", "", "/path/to/results.bin or 'stdout', optional")
	optWorkers  = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
	optTarget   = flag.String("target", "http://localhost:8080/counter", "URL of the counter endpoint")
	optAudience = flag.String("audience", "", "aud of the ID token attached to each request, e.g. Cloud Run URL")
)

func init() {
	flag.Var(optRate, "rate", "Number of requests per time unit")
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

type nopWriteCloser struct {
	io.Writer
}

func (c nopWriteCloser) Close() error {
	return nil
}

func openResultFile(out string) (io.WriteCloser, error) {
	switch out {
	case "":
		return &nopWriteCloser{io.Discard}, nil
	case "stdout":
		return &nopWriteCloser{os.Stdout}, nil
	default:
		return os.Create(out)
	}
}

func newHTTPClient(ctx context.Context) (*http.Client, error) {
	if *optAudience == "" {
		return &http.Client{Timeout: 30 * time.Second}, nil
	}
	// credential must be a service account
	cl, err := idtoken.NewClient(ctx, *optAudience)
	if err != nil {
		return nil, fmt.Errorf("idtoken.NewClient: %w", err)
	}
	return cl, nil
}

type recorder struct {
	mu     sync.Mutex
	counts []int64
}

func (r *recorder) add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, n)
}

func visit(ctx context.Context, cl *http.Client, target string) (*counter.Counter, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	res, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("status=%d, body=%s", res.StatusCode, b)
	}

	var c counter.Counter
	if err := json.NewDecoder(res.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("json.Decode: %w", err)
	}
	return &c, nil
}

func main() {
	logger.Infof("ver=%s, args=%s", version, os.Args)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, err := newHTTPClient(ctx)
	if err != nil {
		logger.Fatalf("*** %v", err)
	}

	rec := &recorder{}
	atk := vh.NewAttacker(func(ctx context.Context) (result *vh.HitResult, retErr error) {
		c, err := visit(ctx, cl, *optTarget)
		if err != nil {
			return nil, err
		}
		rec.add(c.Count)
		return result, nil
	}, vh.WithWorkers(*optWorkers))
	res := atk.Attack(ctx, *optRate.Rate, *optDuration, "counter")

	out, err := openResultFile(*optOutput)
	if err != nil {
		logger.Fatal(err)
	}
	defer out.Close()
	enc := vegeta.NewEncoder(out)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)

	var m vegeta.Metrics
loop:
	for {
		select {
		case s := <-sig:
			logger.Infof("Received signal: %s", s)
			cancel()
			// keep loop until 'res' is closed.
		case r, ok := <-res:
			if !ok {
				break loop
			}
			m.Add(r)
			if err := enc.Encode(r); err != nil {
				logger.Errorf("*** Encode: %v", err)
				break loop
			}
		}
	}
	m.Close()

	dups, gaps := counter.Audit(rec.counts)
	logger.Infof("requests=%s, success=%.2f%%, p50=%s, p99=%s",
		humanize.Comma(int64(m.Requests)), m.Success*100, m.Latencies.P50, m.Latencies.P99)
	if len(rec.counts) > 0 {
		logger.Infof("visits=%s, first=%s, last=%s",
			humanize.Comma(int64(len(rec.counts))), humanize.Comma(lo.Min(rec.counts)), humanize.Comma(lo.Max(rec.counts)))
	}

	if len(gaps) > 0 {
		// other clients visiting during the run take these
		logger.Warnf("gaps=%d", len(gaps))
	}
	if len(dups) > 0 {
		logger.Errorf("*** duplicates=%v", dups)
		os.Exit(1)
	}
}
