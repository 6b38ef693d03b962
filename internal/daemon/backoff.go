package daemon

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns the delay to wait before retrying a task that has
// failed the given number of attempts: min(base * 2^attempts, cap).
// With jitter enabled the delay is scaled by a random factor in
// [0.5, 1.0) so simultaneous failures don't retry in lockstep.
//
// The function is pure apart from the jitter draw, so retry policy can
// be tested independently of the daemon loop.
func Backoff(attempts int, base, cap time.Duration, jitter bool) time.Duration {
	if base <= 0 || attempts < 0 {
		return 0
	}

	delay := float64(base) * math.Pow(2, float64(attempts))
	if cap > 0 && delay > float64(cap) {
		delay = float64(cap)
	}

	if jitter {
		delay *= 0.5 + rand.Float64()*0.5
	}

	return time.Duration(delay)
}
