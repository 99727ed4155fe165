package verifier

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/paramgen"
)

// kv is a sequential map model.
type kv struct {
	m map[int64]string
}

func newKV() any {
	return &kv{m: map[int64]string{}}
}

var (
	opPut = &ir.Operation{
		Name:   "put",
		Params: []ir.ArgGenerator{paramgen.IntGen{Begin: 1, End: 2}, paramgen.EnumGen{Values: []ir.IRValue{ir.IRString("a"), ir.IRString("b")}}},
		Run: func(_ *instr.Thread, s any, args []ir.IRValue) (ir.IRValue, error) {
			m := s.(*kv).m
			k, v := int64(args[0].(ir.IRInt)), string(args[1].(ir.IRString))
			old, ok := m[k]
			m[k] = v
			if !ok {
				return ir.IRNull{}, nil
			}
			return ir.IRString(old), nil
		},
	}
	opGet = &ir.Operation{
		Name:   "get",
		Params: []ir.ArgGenerator{paramgen.IntGen{Begin: 1, End: 2}},
		Run: func(_ *instr.Thread, s any, args []ir.IRValue) (ir.IRValue, error) {
			v, ok := s.(*kv).m[int64(args[0].(ir.IRInt))]
			if !ok {
				return ir.IRNull{}, nil
			}
			return ir.IRString(v), nil
		},
	}
)

// register is a single integer cell.
type register struct {
	v int64
}

func newRegister() any {
	return &register{}
}

func registerOps(writeBoundary bool) (write, read *ir.Operation) {
	write = &ir.Operation{
		Name:              "write",
		QuiescentBoundary: writeBoundary,
		Run: func(_ *instr.Thread, s any, args []ir.IRValue) (ir.IRValue, error) {
			s.(*register).v = int64(args[0].(ir.IRInt))
			return nil, nil
		},
	}
	read = &ir.Operation{
		Name: "read",
		Run: func(_ *instr.Thread, s any, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(s.(*register).v), nil
		},
	}
	return write, read
}

// stack is a sequential LIFO model that names its own state.
type stack struct {
	items []int64
}

func newStack() any {
	return &stack{}
}

func (s *stack) StateKey() string {
	return fmt.Sprint(s.items)
}

var errEmpty = errors.New("empty")

func stackOps(popRelaxed bool) (push, pop *ir.Operation) {
	push = &ir.Operation{
		Name: "push",
		Run: func(_ *instr.Thread, s any, args []ir.IRValue) (ir.IRValue, error) {
			st := s.(*stack)
			st.items = append(st.items, int64(args[0].(ir.IRInt)))
			return nil, nil
		},
	}
	pop = &ir.Operation{
		Name:    "pop",
		Relaxed: popRelaxed,
		Handled: []ir.HandledError{{Name: "Empty", Target: errEmpty}},
		Run: func(_ *instr.Thread, s any, _ []ir.IRValue) (ir.IRValue, error) {
			st := s.(*stack)
			if len(st.items) == 0 {
				return nil, errEmpty
			}
			v := st.items[len(st.items)-1]
			st.items = st.items[:len(st.items)-1]
			return ir.IRInt(v), nil
		},
	}
	return push, pop
}

// stutterCounter is a cost counter for a counter whose relaxed incr may
// return the current value without incrementing.
type stutterCounter struct {
	value int64
}

func (c stutterCounter) Key() string {
	return strconv.FormatInt(c.value, 10)
}

func (c stutterCounter) Next(inv ir.Invocation, out ir.Outcome) ([]Transition, error) {
	switch inv.Name() {
	case "incr":
		var ts []Transition
		if out.Equal(ir.ValueOutcome(ir.IRInt(c.value + 1))) {
			ts = append(ts, Flag(stutterCounter{value: c.value + 1}, false))
		}
		if out.Equal(ir.ValueOutcome(ir.IRInt(c.value))) {
			ts = append(ts, Flag(c, true))
		}
		return ts, nil
	case "get":
		return Exact(c, out.Equal(ir.ValueOutcome(ir.IRInt(c.value)))), nil
	}
	return nil, fmt.Errorf("unknown operation %s", inv.Name())
}

var (
	opIncr  = &ir.Operation{Name: "incr", Relaxed: true}
	opCount = &ir.Operation{Name: "get"}
)

// relaxedQueue is a cost counter for a queue whose dequeue may return any
// element, at a cost equal to its distance from the head.
type relaxedQueue struct {
	items []int64
}

func (q relaxedQueue) Key() string {
	return fmt.Sprint(q.items)
}

func (q relaxedQueue) Next(inv ir.Invocation, out ir.Outcome) ([]Transition, error) {
	switch inv.Name() {
	case "enq":
		items := append(append([]int64(nil), q.items...), int64(inv.Args[0].(ir.IRInt)))
		return Exact(relaxedQueue{items: items}, out.Kind == ir.OutcomeVoid), nil
	case "deq":
		var ts []Transition
		for i, v := range q.items {
			if out.Equal(ir.ValueOutcome(ir.IRInt(v))) {
				items := append(append([]int64(nil), q.items[:i]...), q.items[i+1:]...)
				ts = append(ts, Cost(relaxedQueue{items: items}, i))
			}
		}
		return ts, nil
	}
	return nil, fmt.Errorf("unknown operation %s", inv.Name())
}

var (
	opEnq = &ir.Operation{Name: "enq"}
	opDeq = &ir.Operation{Name: "deq", Relaxed: true}
)

func call(op *ir.Operation, args ...ir.IRValue) ir.Invocation {
	return ir.Invocation{Op: op, Args: args}
}

func val(v any) ir.Outcome {
	switch x := v.(type) {
	case nil:
		return ir.ValueOutcome(ir.IRNull{})
	case int:
		return ir.ValueOutcome(ir.IRInt(x))
	case string:
		return ir.ValueOutcome(ir.IRString(x))
	}
	panic(fmt.Sprintf("unsupported value %T", v))
}

var void = ir.VoidOutcome()

// interleave replays s on a fresh model in a random order that respects
// per-thread order, producing a result that is linearizable by
// construction.
func interleave(s *ir.Scenario, model ModelFactory, r *rand.Rand) (*ir.ExecutionResult, error) {
	m := model()
	res := &ir.ExecutionResult{Parallel: make([][]ir.Outcome, len(s.Parallel))}

	seq := func(invs []ir.Invocation) ([]ir.Outcome, error) {
		outs := make([]ir.Outcome, len(invs))
		for i, inv := range invs {
			out, err := inv.ExecuteModel(m)
			if err != nil {
				return nil, err
			}
			outs[i] = out
		}
		return outs, nil
	}

	var err error
	if res.Initial, err = seq(s.Initial); err != nil {
		return nil, err
	}
	next := make([]int, len(s.Parallel))
	for t := range s.Parallel {
		res.Parallel[t] = make([]ir.Outcome, len(s.Parallel[t]))
	}
	for {
		var open []int
		for t := range s.Parallel {
			if next[t] < len(s.Parallel[t]) {
				open = append(open, t)
			}
		}
		if len(open) == 0 {
			break
		}
		t := open[r.IntN(len(open))]
		out, err := s.Parallel[t][next[t]].ExecuteModel(m)
		if err != nil {
			return nil, err
		}
		res.Parallel[t][next[t]] = out
		next[t]++
	}
	if res.Final, err = seq(s.Final); err != nil {
		return nil, err
	}
	return res, nil
}

func describe(s *ir.Scenario) string {
	var b strings.Builder
	for _, th := range s.Parallel {
		for _, inv := range th {
			b.WriteString(inv.String())
			b.WriteByte(' ')
		}
		b.WriteString("| ")
	}
	return b.String()
}
