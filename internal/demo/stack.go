package demo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// ErrEmpty is returned by removals from an empty structure.
var ErrEmpty = errors.New("empty")

type stackNode struct {
	value int64
	next  *stackNode
}

// TreiberStack is a lock-free stack.
type TreiberStack struct {
	top instr.Ref[stackNode]
}

// NewTreiberStack creates an empty stack.
func NewTreiberStack() any {
	return &TreiberStack{}
}

// Push adds v on top.
func (s *TreiberStack) Push(t *instr.Thread, v int64) {
	n := &stackNode{value: v}
	for {
		n.next = s.top.Load(t)
		if s.top.CompareAndSwap(t, n.next, n) {
			return
		}
	}
}

// Pop removes the top value.
func (s *TreiberStack) Pop(t *instr.Thread) (int64, error) {
	for {
		top := s.top.Load(t)
		if top == nil {
			return 0, ErrEmpty
		}
		if s.top.CompareAndSwap(t, top, top.next) {
			return top.value, nil
		}
	}
}

// StateKey lists the values from the top down.
func (s *TreiberStack) StateKey() string {
	var b strings.Builder
	for n := s.top.Load(instr.Sequential()); n != nil; n = n.next {
		b.WriteString(strconv.FormatInt(n.value, 10))
		b.WriteByte(' ')
	}
	return b.String()
}

// Treiber is a linearizable lock-free stack.
func Treiber() *harness.Subject {
	return harness.NewSubject("treiber-stack", NewTreiberStack).
		Operation("push", harness.Run(func(t *instr.Thread, s *TreiberStack, args []ir.IRValue) (ir.IRValue, error) {
			s.Push(t, int64(args[0].(ir.IRInt)))
			return nil, nil
		}), harness.Param("int", "1:9")).
		Operation("pop", harness.Run(func(t *instr.Thread, s *TreiberStack, _ []ir.IRValue) (ir.IRValue, error) {
			v, err := s.Pop(t)
			if err != nil {
				return nil, err
			}
			return ir.IRInt(v), nil
		}), harness.Handles("Empty", ErrEmpty)).
		MustBuild()
}
