// Package scenario generates randomized concurrent scenarios.
//
// A scenario is an initial sequential prefix, one invocation sequence per
// parallel thread, and a final sequential suffix. Generation honors two
// operation-level constraints: run-once operations appear at most once in
// the whole scenario, and every operation of a non-parallel group is
// funneled to a single thread.
package scenario

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/roach88/interleave/internal/ir"
)

// Config shapes generated scenarios.
type Config struct {
	Threads         int
	ActorsPerThread int
	ActorsBefore    int
	ActorsAfter     int

	// NonParallelGroups names the operation groups whose operations must
	// all run on one thread.
	NonParallelGroups []string
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	var errs []error
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}
	if c.ActorsPerThread < 0 {
		errs = append(errs, fmt.Errorf("actors per thread must not be negative, got %d", c.ActorsPerThread))
	}
	if c.ActorsBefore < 0 {
		errs = append(errs, fmt.Errorf("actors before must not be negative, got %d", c.ActorsBefore))
	}
	if c.ActorsAfter < 0 {
		errs = append(errs, fmt.Errorf("actors after must not be negative, got %d", c.ActorsAfter))
	}
	return errors.Join(errs...)
}

// Generator builds scenarios from a fixed operation table. It owns its
// random source, so a Generator seeded identically produces the same
// sequence of scenarios.
//
// Thread-safety: Generator is NOT safe for concurrent use.
type Generator struct {
	cfg Config
	ops []*ir.Operation
	r   *rand.Rand
}

// NewGenerator creates a generator drawing from a PCG source seeded with
// seed.
func NewGenerator(cfg Config, ops []*ir.Operation, seed uint64) *Generator {
	return &Generator{cfg: cfg, ops: ops, r: rand.New(rand.NewPCG(seed, seed))}
}

// Next generates the next scenario.
func (g *Generator) Next() *ir.Scenario {
	return Generate(g.cfg, g.ops, g.r)
}

// threadPool tracks the generation state of one parallel thread.
type threadPool struct {
	index       int
	left        int
	nonParallel []*ir.Operation
}

// Generate builds one scenario from ops using r.
//
// Initial part: ActorsBefore draws from the operations that are not
// run-once. Parallel part: non-parallel groups are shuffled and assigned to
// threads round-robin; threads are then filled one invocation at a time,
// round-robin, each draw uniform over the thread's own group operations
// plus the shared pool. Final part: ActorsAfter draws from everything left
// over. Run-once operations leave their pool once drawn.
func Generate(cfg Config, ops []*ir.Operation, r *rand.Rand) *ir.Scenario {
	s := &ir.Scenario{Parallel: make([][]ir.Invocation, cfg.Threads)}

	var reusable []*ir.Operation
	for _, op := range ops {
		if !op.RunOnce {
			reusable = append(reusable, op)
		}
	}
	for i := 0; i < cfg.ActorsBefore && len(reusable) > 0; i++ {
		op := reusable[r.IntN(len(reusable))]
		s.Initial = append(s.Initial, invoke(op, r))
	}

	groups := nonParallelGroups(cfg, ops)
	r.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })

	var shared []*ir.Operation
	for _, op := range ops {
		if !slices.Contains(cfg.NonParallelGroups, op.Group) || op.Group == "" {
			shared = append(shared, op)
		}
	}

	pools := make([]*threadPool, cfg.Threads)
	for i := range pools {
		pools[i] = &threadPool{index: i, left: cfg.ActorsPerThread}
		s.Parallel[i] = []ir.Invocation{}
	}
	for i, group := range groups {
		if len(pools) == 0 {
			break
		}
		p := pools[i%len(pools)]
		p.nonParallel = append(p.nonParallel, group...)
	}

	active := make([]*threadPool, 0, len(pools))
	for _, p := range pools {
		if p.left > 0 {
			active = append(active, p)
		}
	}
	for len(active) > 0 {
		next := active[:0]
		for _, p := range active {
			bound := len(p.nonParallel) + len(shared)
			if bound == 0 {
				continue
			}
			idx := r.IntN(bound)
			var op *ir.Operation
			if idx < len(p.nonParallel) {
				op, p.nonParallel = take(p.nonParallel, idx)
			} else {
				op, shared = take(shared, idx-len(p.nonParallel))
			}
			s.Parallel[p.index] = append(s.Parallel[p.index], invoke(op, r))
			p.left--
			if p.left > 0 {
				next = append(next, p)
			}
		}
		active = next
	}

	leftover := slices.Clone(shared)
	for _, p := range pools {
		leftover = append(leftover, p.nonParallel...)
	}
	for i := 0; i < cfg.ActorsAfter && len(leftover) > 0; i++ {
		var op *ir.Operation
		op, leftover = take(leftover, r.IntN(len(leftover)))
		s.Final = append(s.Final, invoke(op, r))
	}

	return s
}

// nonParallelGroups collects the operations of each configured
// non-parallel group, in configuration order. Groups with no operations
// are skipped.
func nonParallelGroups(cfg Config, ops []*ir.Operation) [][]*ir.Operation {
	var groups [][]*ir.Operation
	for _, name := range cfg.NonParallelGroups {
		var members []*ir.Operation
		for _, op := range ops {
			if op.Group == name {
				members = append(members, op)
			}
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return groups
}

// take returns pool[idx], removing it from the pool when it is run-once.
func take(pool []*ir.Operation, idx int) (*ir.Operation, []*ir.Operation) {
	op := pool[idx]
	if op.RunOnce {
		pool = slices.Delete(pool, idx, idx+1)
	}
	return op, pool
}

func invoke(op *ir.Operation, r *rand.Rand) ir.Invocation {
	args := make([]ir.IRValue, len(op.Params))
	for i, p := range op.Params {
		args[i] = p.Generate(r)
	}
	return ir.Invocation{Op: op, Args: args}
}
