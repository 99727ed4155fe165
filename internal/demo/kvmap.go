package demo

import (
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// LockedMap is a map guarded by an instrumented mutex.
type LockedMap struct {
	mu instr.Mutex
	m  map[int64]string
}

// NewLockedMap creates an empty map.
func NewLockedMap() any {
	return &LockedMap{m: make(map[int64]string)}
}

// Put stores v under k and returns the previous value, if any.
func (m *LockedMap) Put(t *instr.Thread, k int64, v string) (string, bool) {
	m.mu.Lock(t)
	defer m.mu.Unlock(t)
	old, ok := m.m[k]
	m.m[k] = v
	return old, ok
}

// Get returns the value stored under k.
func (m *LockedMap) Get(t *instr.Thread, k int64) (string, bool) {
	m.mu.Lock(t)
	defer m.mu.Unlock(t)
	v, ok := m.m[k]
	return v, ok
}

// Remove deletes k and returns the value it held.
func (m *LockedMap) Remove(t *instr.Thread, k int64) (string, bool) {
	m.mu.Lock(t)
	defer m.mu.Unlock(t)
	v, ok := m.m[k]
	delete(m.m, k)
	return v, ok
}

func optional(v string, ok bool) ir.IRValue {
	if !ok {
		return ir.IRNull{}
	}
	return ir.IRString(v)
}

// MutexMap is a linearizable map. Its reference states are fingerprinted
// structurally.
func MutexMap() *harness.Subject {
	return harness.NewSubject("mutex-map", NewLockedMap).
		Operation("put", harness.Run(func(t *instr.Thread, m *LockedMap, args []ir.IRValue) (ir.IRValue, error) {
			return optional(m.Put(t, int64(args[0].(ir.IRInt)), string(args[1].(ir.IRString)))), nil
		}), harness.Param("int", "1:3"), harness.Param("string", "2:ab")).
		Operation("get", harness.Run(func(t *instr.Thread, m *LockedMap, args []ir.IRValue) (ir.IRValue, error) {
			return optional(m.Get(t, int64(args[0].(ir.IRInt)))), nil
		}), harness.Param("int", "1:3")).
		Operation("remove", harness.Run(func(t *instr.Thread, m *LockedMap, args []ir.IRValue) (ir.IRValue, error) {
			return optional(m.Remove(t, int64(args[0].(ir.IRInt)))), nil
		}), harness.Param("int", "1:3")).
		MustBuild()
}
