// Package retry implements a bounded exponential backoff with jitter.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

type Options struct {
	// Total number of attempts, the first one included. Values below 1 mean 1.
	MaxAttempts int

	InitialBackoff time.Duration // Delay before the second attempt
	MaxBackoff     time.Duration // Upper bound of a single delay
	Multiplier     float64       // Next backoff is this * previous backoff

	// Fraction of each delay that is randomized, 0 <= Jitter <= 1.
	// A delay d becomes a value in [d*(1-Jitter), d].
	Jitter float64

	Clock clockwork.Clock // Optional clock implementation to use.
}

func DefaultOptions() *Options {
	return &Options{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		Multiplier:     2,
		Jitter:         0.5,
	}
}

type Retry struct {
	opts  Options
	ctx   context.Context
	clock clockwork.Clock
	rand  func() float64

	currentAttempt int
	started        bool
}

func New(ctx context.Context, opts *Options) *Retry {
	o := *opts
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.Multiplier < 1 {
		o.Multiplier = 1
	}
	o.Jitter = math.Max(0, math.Min(1, o.Jitter))

	clock := o.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Retry{
		ctx:   ctx,
		opts:  o,
		clock: clock,
		rand:  rand.Float64,
	}
}

func (r *Retry) backoff() time.Duration {
	// currentAttempt is the number of attempts already made, >= 1 here.
	b := float64(r.opts.InitialBackoff) * math.Pow(r.opts.Multiplier, float64(r.currentAttempt-1))
	if maxBackoff := float64(r.opts.MaxBackoff); maxBackoff > 0 && b > maxBackoff {
		b = maxBackoff
	}
	if r.opts.Jitter > 0 {
		b -= b * r.opts.Jitter * r.rand()
	}
	return time.Duration(b)
}

// NextDelay reports how long to wait before the next attempt, and whether
// another attempt is allowed at all. The first call always returns (0, true).
func (r *Retry) NextDelay() (time.Duration, bool) {
	if !r.started {
		r.started = true
		r.currentAttempt = 1
		return 0, true
	}

	if r.currentAttempt >= r.opts.MaxAttempts {
		return 0, false
	}

	d := r.backoff()
	r.currentAttempt++
	return d, true
}

// Next blocks until the next attempt may start. It returns false when the
// attempts are used up or the context is done.
//
//	r := retry.New(ctx, opts)
//	for r.Next() {
//	  doSomething()
//	}
func (r *Retry) Next() bool {
	d, ok := r.NextDelay()
	if !ok {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		return false
	}
	if d <= 0 {
		return true
	}

	select {
	case <-r.clock.After(d):
		return true
	case <-r.ctx.Done():
		return false
	}
}

// AttemptNumber is the 1-based number of the attempt in progress.
func (r *Retry) AttemptNumber() int {
	return r.currentAttempt
}

func (r *Retry) MaxAttempts() int {
	return r.opts.MaxAttempts
}
