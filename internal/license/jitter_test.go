package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitter(t *testing.T) {
	min := 1 * time.Second
	max := 10 * time.Second

	t.Run("deterministic for equal seeds", func(t *testing.T) {
		a := Jitter("job-9f3c2a1e", min, max)
		b := Jitter("job-9f3c2a1e", min, max)
		assert.Equal(t, a, b)
	})

	t.Run("stays within bounds", func(t *testing.T) {
		seeds := []string{"a", "b", "c", "job-1", "job-2", "0123456789"}
		for _, seed := range seeds {
			d := Jitter(seed, min, max)
			assert.GreaterOrEqual(t, d, min, "seed %q", seed)
			assert.Less(t, d, max, "seed %q", seed)
		}
	})

	t.Run("different seeds spread out", func(t *testing.T) {
		seen := make(map[time.Duration]bool)
		for _, seed := range []string{"job-1", "job-2", "job-3", "job-4", "job-5"} {
			seen[Jitter(seed, min, max)] = true
		}
		// All five landing on the same instant would defeat the backoff.
		assert.Greater(t, len(seen), 1)
	})

	t.Run("degenerate bounds return min", func(t *testing.T) {
		assert.Equal(t, min, Jitter("seed", min, min))
		assert.Equal(t, max, Jitter("seed", max, min))
	})
}
