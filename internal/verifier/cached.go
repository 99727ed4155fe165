package verifier

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/interleave/internal/ir"
)

// Cached memoizes the verdicts of an inner verifier per scenario and
// result. Repeated runs of one scenario often produce the same result;
// those are answered without searching again. Errors are not memoized.
//
// Thread-safety: safe for concurrent use if the inner verifier is.
type Cached struct {
	inner Verifier

	mu       sync.Mutex
	verdicts map[string]map[string]bool

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Verifier = (*Cached)(nil)

// NewCached wraps inner.
func NewCached(inner Verifier) *Cached {
	return &Cached{inner: inner, verdicts: make(map[string]map[string]bool)}
}

// Verify implements Verifier.
func (c *Cached) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	sk, err := ir.ScenarioHash(s)
	if err != nil {
		// uncacheable arguments, verify directly
		c.misses.Add(1)
		return c.inner.Verify(s, r)
	}
	rk := r.Key()

	c.mu.Lock()
	verdict, ok := c.verdicts[sk][rk]
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return verdict, nil
	}

	c.misses.Add(1)
	verdict, err = c.inner.Verify(s, r)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.verdicts[sk] == nil {
		c.verdicts[sk] = make(map[string]bool)
	}
	c.verdicts[sk][rk] = verdict
	c.mu.Unlock()
	return verdict, nil
}

// Stats returns how many verifications were answered from the cache and
// how many reached the inner verifier.
func (c *Cached) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Unwrap returns the inner verifier.
func (c *Cached) Unwrap() Verifier {
	return c.inner
}
