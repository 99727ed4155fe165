package demo

import (
	"math/rand/v2"
	"sync/atomic"
)

var instances atomic.Uint64

// newRand returns a random source seeded differently for every instance.
func newRand() *rand.Rand {
	n := instances.Add(1)
	return rand.New(rand.NewPCG(n, n*0x9E3779B97F4A7C15))
}
