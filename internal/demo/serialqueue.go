package demo

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// ShuffleQueue buffers pushed values and, whenever its output runs dry,
// moves the whole buffer to the output in random order. Every history it
// produces is serializable; few are linearizable.
type ShuffleQueue struct {
	mu     instr.Mutex
	r      *rand.Rand
	out    []int64
	buffer []int64
}

// NewShuffleQueue creates an empty queue.
func NewShuffleQueue() any {
	return &ShuffleQueue{r: newRand()}
}

// Push buffers v.
func (q *ShuffleQueue) Push(t *instr.Thread, v int64) {
	q.mu.Lock(t)
	defer q.mu.Unlock(t)
	q.buffer = append(q.buffer, v)
}

// Pop removes the first output value, refilling the output first if it is
// empty.
func (q *ShuffleQueue) Pop(t *instr.Thread) (int64, error) {
	q.mu.Lock(t)
	defer q.mu.Unlock(t)
	if len(q.out) == 0 {
		q.r.Shuffle(len(q.buffer), func(i, j int) {
			q.buffer[i], q.buffer[j] = q.buffer[j], q.buffer[i]
		})
		q.out = append(q.out, q.buffer...)
		q.buffer = q.buffer[:0]
	}
	if len(q.out) == 0 {
		return 0, ErrEmpty
	}
	v := q.out[0]
	q.out = q.out[1:]
	return v, nil
}

// fifo is the sequential reference of ShuffleQueue.
type fifo struct {
	items []int64
}

func (q *fifo) StateKey() string {
	return fmt.Sprint(q.items)
}

// SerializableQueue describes a ShuffleQueue checked against a FIFO queue.
func SerializableQueue() *harness.Subject {
	return harness.NewSubject("shuffle-queue", NewShuffleQueue).
		Model(func() any { return &fifo{} }).
		Operation("push", harness.Run(func(t *instr.Thread, q *ShuffleQueue, args []ir.IRValue) (ir.IRValue, error) {
			q.Push(t, int64(args[0].(ir.IRInt)))
			return nil, nil
		}), harness.Param("int", "1:9"), harness.ModelRun(harness.Run(func(_ *instr.Thread, q *fifo, args []ir.IRValue) (ir.IRValue, error) {
			q.items = append(q.items, int64(args[0].(ir.IRInt)))
			return nil, nil
		}))).
		Operation("pop", harness.Run(func(t *instr.Thread, q *ShuffleQueue, _ []ir.IRValue) (ir.IRValue, error) {
			v, err := q.Pop(t)
			if err != nil {
				return nil, err
			}
			return ir.IRInt(v), nil
		}), harness.Handles("Empty", ErrEmpty), harness.ModelRun(harness.Run(func(_ *instr.Thread, q *fifo, _ []ir.IRValue) (ir.IRValue, error) {
			if len(q.items) == 0 {
				return nil, ErrEmpty
			}
			v := q.items[0]
			q.items = q.items[1:]
			return ir.IRInt(v), nil
		}))).
		MustBuild()
}
