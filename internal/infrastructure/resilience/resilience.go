package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Outcome tells the executor what to do with a failed attempt: whether the
// call may be retried and whether the breaker should count it as a failure.
type Outcome struct {
	Retry  bool
	Record bool
}

type Classifier func(err error) Outcome

type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BreakerEnabled     bool
	BreakerMinRequests uint32
	BreakerFailRatio   float64
	BreakerOpenFor     time.Duration
	BreakerProbeCalls  uint32
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,

		BreakerEnabled:     true,
		BreakerMinRequests: 10,
		BreakerFailRatio:   0.5,
		BreakerOpenFor:     30 * time.Second,
		BreakerProbeCalls:  2,
	}
}

func (o Options) sanitized() Options {
	def := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.BreakerMinRequests == 0 {
		o.BreakerMinRequests = def.BreakerMinRequests
	}
	if o.BreakerFailRatio <= 0 || o.BreakerFailRatio > 1 {
		o.BreakerFailRatio = def.BreakerFailRatio
	}
	if o.BreakerOpenFor <= 0 {
		o.BreakerOpenFor = def.BreakerOpenFor
	}
	if o.BreakerProbeCalls == 0 {
		o.BreakerProbeCalls = def.BreakerProbeCalls
	}
	return o
}

// Executor wraps outbound calls in retry-with-backoff plus a per-operation
// circuit breaker. One executor is shared by all clients of one upstream.
type Executor struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(opts Options, logger *slog.Logger) *Executor {
	return &Executor{
		opts:     opts.sanitized(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Do(ctx context.Context, operation string, classify Classifier, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil operation callback")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = func(error) Outcome { return Outcome{Record: true} }
	}

	if !e.opts.BreakerEnabled {
		return e.withRetry(ctx, op, classify, fn)
	}

	breaker := e.breakerFor(op, classify)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.withRetry(ctx, op, classify, fn)
	})
	return err
}

func (e *Executor) withRetry(ctx context.Context, operation string, classify Classifier, fn func(context.Context) error) error {
	backoff := e.opts.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if outcome := classify(err); !outcome.Retry || attempt == e.opts.MaxAttempts {
			return err
		}

		e.logger.Warn("retrying_upstream_call",
			"operation", operation,
			"attempt", attempt,
			"backoff", backoff.String(),
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff *= 2
		if backoff > e.opts.MaxBackoff {
			backoff = e.opts.MaxBackoff
		}
	}
}

func (e *Executor) breakerFor(operation string, classify Classifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.opts.BreakerProbeCalls,
		Timeout:     e.opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.opts.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.opts.BreakerFailRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classify(err).Record
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change",
				"operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
