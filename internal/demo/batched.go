package demo

import (
	"strconv"
	"sync"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// BatchedCounter combines increments per worker and publishes them late.
//
// A worker's increments stay private until the worker has performed k more
// operations, then they are added to the shared total at once. Reads by a
// worker see the shared total only. Operations on the coordinating thread
// (id 0) first publish every pending batch; they only run while no worker
// does.
type BatchedCounter struct {
	k     int
	total instr.Int64

	mu      sync.Mutex // guards batches, not their contents
	batches map[int]*batch
}

// batch is owned by one worker.
type batch struct {
	n   int64
	age int
}

// NewBatchedCounter returns a factory of counters publishing increments
// after k further operations of the same worker.
func NewBatchedCounter(k int) func() any {
	return func() any {
		return &BatchedCounter{k: k, batches: make(map[int]*batch)}
	}
}

func (c *BatchedCounter) batch(id int) *batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[id]
	if !ok {
		b = &batch{}
		c.batches[id] = b
	}
	return b
}

// tick ages the pending batch of the calling worker and publishes it once
// it is k operations old. On the coordinating thread it publishes every
// batch.
func (c *BatchedCounter) tick(t *instr.Thread) {
	if t.ID() == 0 {
		c.mu.Lock()
		var n int64
		for _, b := range c.batches {
			n += b.n
			b.n, b.age = 0, 0
		}
		c.mu.Unlock()
		if n != 0 {
			c.total.Add(t, n)
		}
		return
	}
	b := c.batch(t.ID())
	if b.n == 0 {
		return
	}
	b.age++
	if b.age >= c.k {
		n := b.n
		b.n, b.age = 0, 0
		c.total.Add(t, n)
	}
}

// Incr adds one, eventually.
func (c *BatchedCounter) Incr(t *instr.Thread) {
	c.tick(t)
	if t.ID() == 0 {
		c.total.Add(t, 1)
		return
	}
	c.batch(t.ID()).n++
}

// Get returns the published total.
func (c *BatchedCounter) Get(t *instr.Thread) int64 {
	c.tick(t)
	return c.total.Load(t)
}

// exactCounter is the sequential reference of BatchedCounter.
type exactCounter struct {
	v int64
}

func (c *exactCounter) StateKey() string {
	return strconv.FormatInt(c.v, 10)
}

// BatchedCounterSubject describes a counter publishing increments up to k
// operations late. An increment is overtaken by at most k-1 later
// operations of its worker, so the counter is quasi-linearizable with a
// factor of k. For k > 1 it is not linearizable.
func BatchedCounterSubject(k int) *harness.Subject {
	return harness.NewSubject("batched-counter", NewBatchedCounter(k)).
		Model(func() any { return &exactCounter{} }).
		Operation("incr", harness.Run(func(t *instr.Thread, c *BatchedCounter, _ []ir.IRValue) (ir.IRValue, error) {
			c.Incr(t)
			return nil, nil
		}), harness.Relaxed(), harness.ModelRun(harness.Run(func(_ *instr.Thread, c *exactCounter, _ []ir.IRValue) (ir.IRValue, error) {
			c.v++
			return nil, nil
		}))).
		Operation("get", harness.Run(func(t *instr.Thread, c *BatchedCounter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Get(t)), nil
		}), harness.ModelRun(harness.Run(func(_ *instr.Thread, c *exactCounter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.v), nil
		}))).
		MustBuild()
}
