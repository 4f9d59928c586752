package prediction

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffSchedule computes the delay before retry attempt n (1-indexed)
// using the same exponential-backoff-with-jitter shape
// cenkalti/backoff/v4 gives callers elsewhere in the ecosystem, rather than
// hand-rolling the jitter math here.
type backoffSchedule struct {
	base time.Duration
	max  time.Duration
}

func newBackoffSchedule(base, max time.Duration) backoffSchedule {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	return backoffSchedule{base: base, max: max}
}

// next returns the delay to wait before attempt n (n >= 1).
func (s backoffSchedule) next(n int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.base
	b.MaxInterval = s.max
	b.MaxElapsedTime = 0 // never give up on our own clock; the coordinator enforces MaxRetries itself
	b.Reset()

	var delay time.Duration
	for i := 0; i < n; i++ {
		delay = b.NextBackOff()
	}
	if delay <= 0 {
		delay = s.max
	}
	return delay
}
