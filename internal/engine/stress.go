package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// DefaultStressCeiling is the busy-wait bound reached by the last run of a
// scenario.
const DefaultStressCeiling = 1000

// Stress runs workers as real goroutines and perturbs their timing with
// random busy-waits before every invocation but the first of each thread.
//
// The wait bound grows linearly across the runs of one scenario: run i of
// N draws waits from [0, i*Ceiling/N + 1). Early runs keep the threads
// tightly packed; later runs spread them out.
type Stress struct {
	Ceiling int
	Seed    uint64
}

// NewStress creates a stress strategy with the default ceiling.
func NewStress(seed uint64) *Stress {
	return &Stress{Ceiling: DefaultStressCeiling, Seed: seed}
}

// Name implements Strategy.
func (s *Stress) Name() string {
	return "stress"
}

// maxWait returns the exclusive wait bound for attempt a.
func (s *Stress) maxWait(a Attempt) int {
	if a.Total <= 0 {
		return 1
	}
	return a.Index*s.Ceiling/a.Total + 1
}

// RunParallel implements Strategy.
//
// If ctx expires first, RunParallel returns a TIMEOUT error without
// waiting for the workers. Goroutines stuck inside the subject keep
// running until they return on their own.
func (s *Stress) RunParallel(ctx context.Context, subject any, threads [][]ir.Invocation, attempt Attempt) ([][]ir.Outcome, error) {
	results := make([][]ir.Outcome, len(threads))
	maxWait := s.maxWait(attempt)

	var ready sync.WaitGroup
	start := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	for i, invs := range threads {
		r := rand.New(rand.NewPCG(s.Seed, uint64(attempt.Index)<<16|uint64(i)))
		waits := make([]int, len(invs))
		for j := 1; j < len(invs); j++ {
			waits[j] = r.IntN(maxWait)
		}

		ready.Add(1)
		g.Go(func() error {
			th := instr.NewThread(i+1, nil)
			ready.Done()
			<-start

			outs := make([]ir.Outcome, len(invs))
			for j, inv := range invs {
				if j > 0 {
					consumeCPU(waits[j])
				}
				if err := gctx.Err(); err != nil {
					return NewTimeoutError(err)
				}
				out, err := execute(th, subject, inv)
				if err != nil {
					return err
				}
				outs[j] = out
			}
			results[i] = outs
			return nil
		})
	}

	ready.Wait()
	close(start)

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return results, nil
	case <-ctx.Done():
		return nil, NewTimeoutError(ctx.Err())
	}
}

var consumedCPU atomic.Int64

// consumeCPU burns roughly tokens iterations of arithmetic. The result is
// published behind an unlikely branch so the loop cannot be optimized away.
func consumeCPU(tokens int) {
	t := consumedCPU.Load()
	for i := tokens; i > 0; i-- {
		t += (t*0x5DEECE66D + 0xB + int64(i)) & 0xFFFFFFFFFFFF
	}
	if t == 42 {
		consumedCPU.Add(t)
	}
}
