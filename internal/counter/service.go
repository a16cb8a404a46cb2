package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tckz/go-visit-counter/internal/metrics"
	"github.com/tckz/go-visit-counter/internal/retry"
	"go.uber.org/zap"
)

type options struct {
	id              string
	retry           retry.Options
	storeTimeout    time.Duration
	nativeIncrement bool
	logger          *zap.SugaredLogger
	metrics         *metrics.Metrics
}

type Option func(o *options)

func WithID(id string) Option {
	return Option(func(o *options) {
		o.id = id
	})
}

// WithMaxAttempts bounds the load/save attempts of a single visit.
func WithMaxAttempts(n int) Option {
	return Option(func(o *options) {
		o.retry.MaxAttempts = n
	})
}

func WithBackoff(initial, max time.Duration) Option {
	return Option(func(o *options) {
		o.retry.InitialBackoff = initial
		o.retry.MaxBackoff = max
	})
}

func WithClock(c clockwork.Clock) Option {
	return Option(func(o *options) {
		o.retry.Clock = c
	})
}

// WithStoreTimeout bounds every individual store call. 0 disables it.
func WithStoreTimeout(d time.Duration) Option {
	return Option(func(o *options) {
		o.storeTimeout = d
	})
}

// WithNativeIncrement makes Visit use the store's atomic increment when the
// store implements Incrementer.
func WithNativeIncrement(b bool) Option {
	return Option(func(o *options) {
		o.nativeIncrement = b
	})
}

func WithLogger(l *zap.SugaredLogger) Option {
	return Option(func(o *options) {
		o.logger = l
	})
}

func WithMetrics(m *metrics.Metrics) Option {
	return Option(func(o *options) {
		o.metrics = m
	})
}

// Service increments the counter once per Visit and hands back the value
// it had before.
type Service struct {
	store Store
	opts  options
}

func NewService(store Store, opts ...Option) *Service {
	o := options{
		id:           DefaultID,
		retry:        *retry.DefaultOptions(),
		storeTimeout: 5 * time.Second,
		logger:       zap.NewNop().Sugar(),
	}
	for _, e := range opts {
		e(&o)
	}

	return &Service{
		store: store,
		opts:  o,
	}
}

func (s *Service) ID() string {
	return s.opts.id
}

// Visit records one visit. The returned counter holds the pre-increment
// count read by the attempt whose save succeeded.
func (s *Service) Visit(ctx context.Context) (*Counter, error) {
	now := time.Now()
	c, err := s.visit(ctx)
	s.opts.metrics.ObserveVisit(visitResult(err), time.Since(now).Seconds())
	return c, err
}

func (s *Service) visit(ctx context.Context) (*Counter, error) {
	if inc, ok := s.store.(Incrementer); ok && s.opts.nativeIncrement {
		return s.fetchAndIncrement(ctx, inc)
	}

	logger := s.opts.logger.With(zap.String("counterID", s.opts.id))

	r := retry.New(ctx, &s.opts.retry)
	for r.Next() {
		attempt := r.AttemptNumber()
		c, err := s.attempt(ctx, logger.With(zap.Int("attempt", attempt)))
		if err == nil {
			s.opts.metrics.ObserveAttempt(metrics.OutcomeSaved)
			return c, nil
		}
		if !errors.Is(err, ErrConflict) {
			s.opts.metrics.ObserveAttempt(metrics.OutcomeError)
			logger.Debugf("state=%s", StateFailed)
			return nil, err
		}

		s.opts.metrics.ObserveAttempt(metrics.OutcomeConflict)
		logger.Debugf("state=%s, attempt=%d/%d", StateRetrying, attempt, r.MaxAttempts())
	}

	logger.Debugf("state=%s", StateFailed)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: id=%s: %w", ErrStoreUnavailable, s.opts.id, err)
	}
	return nil, fmt.Errorf("%w: id=%s, attempts=%d", ErrExhausted, s.opts.id, r.MaxAttempts())
}

// attempt runs one load/compute/save cycle.
func (s *Service) attempt(ctx context.Context, logger *zap.SugaredLogger) (*Counter, error) {
	logger.Debugf("state=%s", StateLoading)
	loaded, token, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	logger.Debugf("state=%s, count=%d", StateComputing, loaded.Count)
	next := &Counter{ID: loaded.ID, Count: loaded.Count + 1}

	logger.Debugf("state=%s, next=%d", StateSaving, next.Count)
	if err := s.save(ctx, next, token); err != nil {
		return nil, err
	}

	logger.Debugf("state=%s", StateSucceeded)
	return loaded, nil
}

func (s *Service) load(ctx context.Context) (*Counter, Token, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, token, err := s.store.Load(ctx, s.opts.id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("%w: id=%s: %w", ErrCounterMissing, s.opts.id, err)
		}
		return nil, "", s.unavailable("Load", err)
	}
	return c, token, nil
}

func (s *Service) save(ctx context.Context, c *Counter, token Token) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Save(ctx, c, token); err != nil {
		if errors.Is(err, ErrConflict) {
			return err
		}
		return s.unavailable("Save", err)
	}
	return nil
}

func (s *Service) fetchAndIncrement(ctx context.Context, inc Incrementer) (*Counter, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := inc.FetchAndIncrement(ctx, s.opts.id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: id=%s: %w", ErrCounterMissing, s.opts.id, err)
		}
		return nil, s.unavailable("FetchAndIncrement", err)
	}
	s.opts.metrics.ObserveAttempt(metrics.OutcomeSaved)
	return c, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.storeTimeout)
}

// unavailable folds everything outside the store taxonomy into ErrStoreUnavailable.
func (s *Service) unavailable(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: id=%s: %w", op, s.opts.id, err)
	}
	return fmt.Errorf("%w: %s: id=%s: %w", ErrStoreUnavailable, op, s.opts.id, err)
}

func visitResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrCounterMissing):
		return metrics.ResultMissing
	case errors.Is(err, ErrExhausted):
		return metrics.ResultExhausted
	default:
		return metrics.ResultError
	}
}
