package prediction

import (
	"sync"
	"time"

	"github.com/cro-platform/molcore/pkg/errors"
)

// breakerState is the circuit breaker's own state, distinct from a job's
// mtypes.PredictionJobState.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker trips once the fraction of failed calls in a rolling window
// of recent calls exceeds failureRatio, short-circuiting new dispatches for
// openDuration before allowing a single half-open trial call through.
//
// No circuit-breaker library is vendored anywhere in the retrieval pack, so
// this is implemented directly, matching the size and shape of the
// platform's other small mutex-guarded stateful types.
type circuitBreaker struct {
	mu sync.Mutex

	failureRatio float64
	openDuration time.Duration
	minSamples   int

	state       breakerState
	openedAt    time.Time
	successes   int
	failures    int
}

// newCircuitBreaker builds a breaker. failureRatio and openDuration fall back
// to sane defaults when zero-valued.
func newCircuitBreaker(failureRatio float64, openDuration time.Duration) *circuitBreaker {
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &circuitBreaker{
		failureRatio: failureRatio,
		openDuration: openDuration,
		minSamples:   10,
	}
}

// Allow reports whether a call may proceed, transitioning Open→HalfOpen once
// openDuration has elapsed.
func (b *circuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) < b.openDuration {
			return errors.New(errors.CodeCircuitOpen, "predictor circuit breaker is open")
		}
		b.state = breakerHalfOpen
		return nil
	default:
		return nil
	}
}

// RecordSuccess registers a successful call, closing the breaker from
// HalfOpen and resetting the failure window.
func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.reset()
		return
	}
	b.successes++
	b.maybeReset()
}

// RecordFailure registers a failed call. A failure while HalfOpen reopens the
// breaker immediately; otherwise the breaker opens once minSamples calls have
// been observed and the failure ratio exceeds the configured threshold.
func (b *circuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.trip()
		return
	}
	b.failures++
	total := b.successes + b.failures
	if total >= b.minSamples && float64(b.failures)/float64(total) >= b.failureRatio {
		b.trip()
	}
}

func (b *circuitBreaker) trip() {
	b.state = breakerOpen
	b.openedAt = time.Now()
	b.successes = 0
	b.failures = 0
}

func (b *circuitBreaker) reset() {
	b.state = breakerClosed
	b.successes = 0
	b.failures = 0
}

// maybeReset decays the sample window so a long-running healthy breaker
// doesn't accumulate an unbounded success count before ever re-evaluating.
func (b *circuitBreaker) maybeReset() {
	if b.successes+b.failures > b.minSamples*10 {
		b.successes = 0
		b.failures = 0
	}
}
