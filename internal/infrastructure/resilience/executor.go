// Package resilience wraps outbound calls to the model engines and the
// message broker with bounded retries and a per-operation circuit breaker.
// Callers classify their own errors; the executor only decides whether to
// try again and whether the breaker should count the failure.
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

// ErrorClassification tells the executor how to treat one failure.
// Retryable failures get another attempt within the backoff budget.
// RecordFailure failures count toward tripping the operation's breaker;
// client-side mistakes (bad input, 4xx) should leave it false so they
// cannot open the circuit.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// ErrorClassifier maps an error from the wrapped call to its classification.
type ErrorClassifier func(err error) ErrorClassification

// Executor runs outbound calls under the retry and breaker policy in Config.
// Breakers are keyed by operation name, so "engine.structure" and
// "nats.publish" trip independently.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the named operation's breaker, retrying per the
// classifier's verdict. A nil classifier treats every error as final.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil call for operation %q", operation)
	}
	name := strings.TrimSpace(operation)
	if name == "" {
		name = "unnamed"
	}
	if classifier == nil {
		classifier = terminalClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, name, fn, classifier)
	}

	_, err := e.breakerFor(name, classifier).Execute(func() (any, error) {
		return nil, e.retry(ctx, name, fn, classifier)
	})
	return err
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	wait := e.cfg.RetryInitialBackoff
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(lastErr).Retryable {
			return lastErr
		}

		slog.Warn("outbound call retry",
			"operation", operation,
			"attempt", attempt,
			"next_backoff", wait.String(),
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return lastErr
		}
		wait = time.Duration(float64(wait) * e.cfg.RetryMultiplier)
		if wait > e.cfg.RetryMaxBackoff {
			wait = e.cfg.RetryMaxBackoff
		}
	}
}

// sleep waits for d unless the context ends first.
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

func (e *Executor) breakerFor(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
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
			slog.Warn("circuit breaker transition", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err came from a breaker refusing the call
// rather than from the call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func terminalClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
