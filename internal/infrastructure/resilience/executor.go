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
	"golang.org/x/time/rate"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker events for a dependency operation
// such as "ollama.generate" or "nats.publish".
type Observer interface {
	ObserveRetry(operation string, attempt int)
	ObserveCall(operation string, attempts int, err error)
	ObserveBreakerState(operation, from, to string)
}

type noopObserver struct{}

func (noopObserver) ObserveRetry(string, int)                   {}
func (noopObserver) ObserveCall(string, int, error)             {}
func (noopObserver) ObserveBreakerState(string, string, string) {}

// Executor guards calls to an external dependency with a shared rate
// limiter, bounded exponential retries and one circuit breaker per operation.
type Executor struct {
	cfg     Config
	limiter *rate.Limiter

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	observer Observer
}

func NewExecutor(cfg Config) *Executor {
	cfg = cfg.normalize()
	exec := &Executor{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		observer: noopObserver{},
	}
	if cfg.RateLimit > 0 {
		exec.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return exec
}

// SetObserver replaces the event sink. A nil observer disables reporting.
func (e *Executor) SetObserver(observer Observer) {
	if observer == nil {
		observer = noopObserver{}
	}
	e.mu.Lock()
	e.observer = observer
	e.mu.Unlock()
}

func (e *Executor) currentObserver() Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observer
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	attempts := 0
	call := func() error {
		var err error
		attempts, err = e.retry(ctx, op, fn, classifier)
		return err
	}

	var err error
	if e.cfg.BreakerEnabled {
		_, err = e.circuitBreaker(op, classifier).Execute(func() (any, error) {
			return nil, call()
		})
	} else {
		err = call()
	}
	e.currentObserver().ObserveCall(op, attempts, err)
	return err
}

// retry runs fn until it succeeds, returns a non-retryable error or the
// attempt budget is spent. It reports how many attempts were made.
func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) (int, error) {
	maxAttempts := e.cfg.RetryMaxAttempts
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return attempt - 1, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if !classifier(err).Retryable {
			return attempt, err
		}
		if attempt >= maxAttempts {
			slog.Warn("retry_exhausted", "operation", operation, "attempts", attempt, "error", err)
			return attempt, err
		}

		wait := min(backoff, e.cfg.RetryMaxBackoff)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		e.currentObserver().ObserveRetry(operation, attempt)

		if !sleep(ctx, wait) {
			return attempt, err
		}
		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
}

// sleep waits for d and reports false when ctx ends first.
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

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			e.currentObserver().ObserveBreakerState(name, from.String(), to.String())
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
