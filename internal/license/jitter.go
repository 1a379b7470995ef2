package license

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// Jitter returns a pseudo-random delay in [min, max) deterministically
// seeded from seed. The same failure identifier always yields the same
// delay, while different concurrent failures spread out, reducing the
// chance of two handlers colliding on the lock for the same prefix.
//
// Pure function: the caller decides whether to actually sleep.
func Jitter(seed string, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
