package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what a failure means: whether
// another attempt may succeed and whether it counts against the breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateListener is notified when an operation's breaker changes state.
type StateListener func(operation, from, to string)

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithStateListener(listener StateListener) Option {
	return func(e *Executor) {
		e.onState = listener
	}
}

// Executor guards calls to remote dependencies with one breaker per named
// operation and a bounded retry loop. A retry is skipped when the caller's
// deadline would expire during the backoff.
type Executor struct {
	cfg     Config
	logger  *slog.Logger
	onState StateListener

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

var errNilCallback = errors.New("resilience: operation callback is nil")

func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg.normalize(),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn with the configured number of attempts.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	return e.run(ctx, operation, fn, classify, e.cfg.RetryMaxAttempts)
}

// ExecuteOnce runs fn a single time. Cache and embedding calls use it
// because falling back is faster than a second attempt.
func (e *Executor) ExecuteOnce(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier) error {
	return e.run(ctx, operation, fn, classify, 1)
}

// Call is Execute for operations that produce a value.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classify ErrorClassifier) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	}, classify)
	return out, err
}

// State reports the breaker state of an operation, or "closed" if it has not run yet.
func (e *Executor) State(operation string) string {
	e.mu.Lock()
	breaker, ok := e.breakers[operationName(operation)]
	e.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return breaker.State().String()
}

func (e *Executor) run(ctx context.Context, operation string, fn func(context.Context) error, classify ErrorClassifier, attempts int) error {
	if fn == nil {
		return errNilCallback
	}
	if classify == nil {
		classify = recordEverything
	}
	op := operationName(operation)
	attempt := func() error { return e.retry(ctx, op, fn, classify, attempts) }

	if !e.cfg.BreakerEnabled {
		return attempt()
	}
	_, err := e.breaker(op, classify).Execute(func() (struct{}, error) {
		return struct{}{}, attempt()
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify ErrorClassifier, attempts int) error {
	var err error
	for n := 1; n <= attempts; n++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if n == attempts || !classify(err).Retryable {
			return err
		}

		wait := e.cfg.backoff(n)
		if !fitsDeadline(ctx, wait) {
			e.logger.Warn("retry_skipped_deadline", "operation", op, "attempt", n, "error", err)
			return err
		}
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", n,
			"max_attempts", attempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
	return err
}

func (e *Executor) breaker(op string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: e.cfg.shouldTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: e.stateChanged,
	})
	e.breakers[op] = cb
	return cb
}

func (e *Executor) stateChanged(op string, from, to gobreaker.State) {
	e.logger.Warn("circuit_breaker_state_change", "operation", op, "from", from.String(), "to", to.String())
	if e.onState != nil {
		e.onState(op, from.String(), to.String())
	}
}

// fitsDeadline reports whether ctx leaves room to wait before another attempt.
func fitsDeadline(ctx context.Context, wait time.Duration) bool {
	deadline, ok := ctx.Deadline()
	return !ok || time.Until(deadline) > wait
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// IsCircuitOpen reports whether err came from a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func operationName(operation string) string {
	if op := strings.TrimSpace(operation); op != "" {
		return op
	}
	return "unknown"
}

func recordEverything(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
