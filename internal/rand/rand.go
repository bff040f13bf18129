// Package rand provides the jitter used to spread reconnection attempts of
// many clients over time.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

const bytesInUint64 = 8

var defaultSource = newSource()

func newSource() *source {
	seed := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}

	return &source{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

type source struct {
	mut sync.Mutex
	rng *rand.Rand
}

func (s *source) int64N(n int64) int64 {
	s.mut.Lock()
	defer s.mut.Unlock()

	return s.rng.Int64N(n)
}

// Jitter returns a duration drawn uniformly from [0, max).
// It returns 0 when max is not positive.
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(defaultSource.int64N(int64(max)))
}
