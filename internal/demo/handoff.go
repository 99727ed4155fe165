package demo

import (
	"strconv"
	"time"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// handOffWait bounds how long Take parks for a value.
const handOffWait = 200 * time.Microsecond

// HandOff is a one-slot exchange. Take parks briefly when the slot is
// empty and is woken by the next Put.
type HandOff struct {
	slot   instr.Ref[int64]
	waiter instr.Int64 // thread id + 1 of the parked taker, 0 if none
	parker instr.Parker
}

// NewHandOff creates an empty slot.
func NewHandOff() any {
	return &HandOff{}
}

// Put stores v if the slot is empty and wakes a parked taker. It reports
// whether v was stored.
func (h *HandOff) Put(t *instr.Thread, v int64) bool {
	if !h.slot.CompareAndSwap(t, nil, &v) {
		return false
	}
	if w := h.waiter.Load(t); w != 0 && h.waiter.CompareAndSwap(t, w, 0) {
		h.parker.Unpark(t, int(w-1))
	}
	return true
}

// Take removes the stored value, waiting a short while for one.
func (h *HandOff) Take(t *instr.Thread) (int64, bool) {
	if v, ok := h.tryTake(t); ok {
		return v, true
	}
	h.waiter.Store(t, int64(t.ID())+1)
	h.parker.ParkTimeout(t, handOffWait)
	h.waiter.CompareAndSwap(t, int64(t.ID())+1, 0)
	return h.tryTake(t)
}

func (h *HandOff) tryTake(t *instr.Thread) (int64, bool) {
	for {
		p := h.slot.Load(t)
		if p == nil {
			return 0, false
		}
		if h.slot.CompareAndSwap(t, p, nil) {
			return *p, true
		}
	}
}

// slot is the sequential reference of HandOff. It never waits.
type slot struct {
	v    int64
	full bool
}

func (s *slot) StateKey() string {
	if !s.full {
		return "empty"
	}
	return strconv.FormatInt(s.v, 10)
}

// HandOffSlot describes a linearizable hand-off slot built on park and
// unpark.
func HandOffSlot() *harness.Subject {
	return harness.NewSubject("hand-off", NewHandOff).
		Model(func() any { return &slot{} }).
		Operation("put", harness.Run(func(t *instr.Thread, h *HandOff, args []ir.IRValue) (ir.IRValue, error) {
			return ir.IRBool(h.Put(t, int64(args[0].(ir.IRInt)))), nil
		}), harness.Param("int", "1:9"), harness.ModelRun(harness.Run(func(_ *instr.Thread, s *slot, args []ir.IRValue) (ir.IRValue, error) {
			if s.full {
				return ir.IRBool(false), nil
			}
			s.v, s.full = int64(args[0].(ir.IRInt)), true
			return ir.IRBool(true), nil
		}))).
		Operation("take", harness.Run(func(t *instr.Thread, h *HandOff, _ []ir.IRValue) (ir.IRValue, error) {
			v, ok := h.Take(t)
			if !ok {
				return ir.IRNull{}, nil
			}
			return ir.IRInt(v), nil
		}), harness.ModelRun(harness.Run(func(_ *instr.Thread, s *slot, _ []ir.IRValue) (ir.IRValue, error) {
			if !s.full {
				return ir.IRNull{}, nil
			}
			s.full = false
			return ir.IRInt(s.v), nil
		}))).
		MustBuild()
}
