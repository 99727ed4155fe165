package demo

import (
	"strconv"
	"strings"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

type queueNode struct {
	value int64
	next  instr.Ref[queueNode]
}

// MPSCQueue is an unbounded multi-producer single-consumer queue.
//
// Producers swing the tail with a CAS and link the old tail afterwards, so
// an element is invisible to the consumer until its predecessor is linked.
// Once closed the queue rejects new elements; the consumer may still drain
// it.
type MPSCQueue struct {
	head   *queueNode // consumer only
	tail   instr.Ref[queueNode]
	closed instr.Int64
}

// NewMPSCQueue creates an empty open queue.
func NewMPSCQueue() any {
	stub := &queueNode{}
	q := &MPSCQueue{head: stub}
	q.tail.Store(instr.Sequential(), stub)
	return q
}

// Offer appends v. It reports false once the queue is closed.
func (q *MPSCQueue) Offer(t *instr.Thread, v int64) bool {
	if q.closed.Load(t) != 0 {
		return false
	}
	n := &queueNode{value: v}
	for {
		prev := q.tail.Load(t)
		if q.tail.CompareAndSwap(t, prev, n) {
			prev.next.Store(t, n)
			return true
		}
	}
}

// Poll removes the first linked element. Must be called by one consumer
// at a time.
func (q *MPSCQueue) Poll(t *instr.Thread) (int64, bool) {
	next := q.head.next.Load(t)
	if next == nil {
		return 0, false
	}
	q.head = next
	return next.value, true
}

// Close stops the queue from accepting elements.
func (q *MPSCQueue) Close(t *instr.Thread) {
	q.closed.Store(t, 1)
}

// StateKey lists the linked elements and the closed flag.
func (q *MPSCQueue) StateKey() string {
	seq := instr.Sequential()
	var b strings.Builder
	if q.closed.Load(seq) != 0 {
		b.WriteString("closed:")
	}
	for n := q.head.next.Load(seq); n != nil; n = n.next.Load(seq) {
		b.WriteString(strconv.FormatInt(n.value, 10))
		b.WriteByte(' ')
	}
	return b.String()
}

// QuiescentQueue describes an MPSC queue. Polls run in a single thread of
// the parallel part; poll and close are checked for quiescent consistency
// only.
func QuiescentQueue() *harness.Subject {
	return harness.NewSubject("mpsc-queue", NewMPSCQueue).
		NonParallelGroup("consumer").
		Operation("offer", harness.Run(func(t *instr.Thread, q *MPSCQueue, args []ir.IRValue) (ir.IRValue, error) {
			return ir.IRBool(q.Offer(t, int64(args[0].(ir.IRInt)))), nil
		}), harness.Param("int", "1:9")).
		Operation("poll", harness.Run(func(t *instr.Thread, q *MPSCQueue, _ []ir.IRValue) (ir.IRValue, error) {
			v, ok := q.Poll(t)
			if !ok {
				return ir.IRNull{}, nil
			}
			return ir.IRInt(v), nil
		}), harness.Group("consumer"), harness.QuiescentBoundary()).
		Operation("close", harness.Run(func(t *instr.Thread, q *MPSCQueue, _ []ir.IRValue) (ir.IRValue, error) {
			q.Close(t)
			return nil, nil
		}), harness.RunOnce(), harness.QuiescentBoundary()).
		MustBuild()
}
