package demo

import (
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// Counter is a shared integer.
type Counter struct {
	v instr.Int64
}

// NewCounter creates a zero counter.
func NewCounter() any {
	return &Counter{}
}

// Incr atomically increments the counter and returns the new value.
func (c *Counter) Incr(t *instr.Thread) int64 {
	return c.v.Add(t, 1)
}

// RacyIncr increments with a separate read and write. Two concurrent calls
// can return the same value and lose an update.
func (c *Counter) RacyIncr(t *instr.Thread) int64 {
	v := c.v.Load(t) + 1
	c.v.Store(t, v)
	return v
}

// Add atomically adds delta and returns the new value.
func (c *Counter) Add(t *instr.Thread, delta int64) int64 {
	return c.v.Add(t, delta)
}

// Get returns the current value.
func (c *Counter) Get(t *instr.Thread) int64 {
	return c.v.Load(t)
}

// AtomicCounter is a correct counter; it is linearizable.
func AtomicCounter() *harness.Subject {
	return harness.NewSubject("atomic-counter", NewCounter).
		Operation("incr", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Incr(t)), nil
		})).
		Operation("add", harness.Run(func(t *instr.Thread, c *Counter, args []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Add(t, int64(args[0].(ir.IRInt)))), nil
		}), harness.Param("int", "1:5")).
		Operation("get", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Get(t)), nil
		})).
		MustBuild()
}

// RacyCounter loses updates under contention; it is not linearizable.
func RacyCounter() *harness.Subject {
	return harness.NewSubject("racy-counter", NewCounter).
		Operation("incr", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.RacyIncr(t)), nil
		})).
		Operation("get", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Get(t)), nil
		})).
		MustBuild()
}
