package verifier

import (
	"strconv"
	"strings"

	"github.com/roach88/interleave/internal/ir"
)

// maxWindow bounds space.window; replayed-ahead positions are tracked in
// a uint64 mask.
const maxWindow = 64

// space describes one search problem over nodes of type N.
type space[N any] struct {
	// start returns the root node, before anything was replayed.
	start func() (N, error)

	// step returns the successors of n after replaying inv, whose recorded
	// outcome is out. No successors means the transition is impossible.
	step func(n N, inv ir.Invocation, out ir.Outcome) ([]N, error)

	// key identifies n for the visited set.
	key func(n N) string

	// window is how many unreplayed positions of a part are candidates at
	// once. 1 enforces strict per-part order.
	window int
}

// frontier is one search node: the model node plus, per part, the first
// unreplayed position and a mask of positions already replayed beyond it.
//
// Parts are numbered like the logical threads of a run: 0 is the initial
// part, 1..T the parallel threads, T+1 the final part.
type frontier[N any] struct {
	node  N
	next  []int
	ahead []uint64
}

// history is a scenario and its result split into parts.
type history struct {
	invs [][]ir.Invocation
	outs [][]ir.Outcome
}

// split arranges s and r into parts, checking that their shapes agree.
func split(s *ir.Scenario, r *ir.ExecutionResult) (history, error) {
	if !r.MatchesShape(s) {
		return history{}, ErrShapeMismatch
	}
	h := history{
		invs: make([][]ir.Invocation, 0, len(s.Parallel)+2),
		outs: make([][]ir.Outcome, 0, len(s.Parallel)+2),
	}
	h.invs = append(h.invs, s.Initial)
	h.outs = append(h.outs, r.Initial)
	h.invs = append(h.invs, s.Parallel...)
	h.outs = append(h.outs, r.Parallel...)
	h.invs = append(h.invs, s.Final)
	h.outs = append(h.outs, r.Final)
	return h, nil
}

// search reports whether some order of replay, legal under sp.window and
// the part phases, reproduces every recorded outcome of h.
//
// The initial part is replayed before any parallel thread, and the final
// part only after every parallel thread completed. The visited set is
// local to the call.
func search[N any](sp space[N], h history) (bool, error) {
	root, err := sp.start()
	if err != nil {
		return false, err
	}
	window := min(max(sp.window, 1), maxWindow)

	stack := []frontier[N]{{
		node:  root,
		next:  make([]int, len(h.invs)),
		ahead: make([]uint64, len(h.invs)),
	}}
	visited := make(map[string]struct{})

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		k := f.key(sp.key)
		if _, seen := visited[k]; seen {
			continue
		}
		visited[k] = struct{}{}

		if f.done(h) {
			return true, nil
		}

		for p := range h.invs {
			if !f.legal(p, h) {
				continue
			}
			for d := 0; d < window; d++ {
				j := f.next[p] + d
				if j >= len(h.invs[p]) {
					break
				}
				if f.ahead[p]&(1<<d) != 0 || !f.movable(p, d, h) {
					continue
				}
				succ, err := sp.step(f.node, h.invs[p][j], h.outs[p][j])
				if err != nil {
					return false, err
				}
				for _, n := range succ {
					stack = append(stack, f.advance(n, p, d))
				}
			}
		}
	}
	return false, nil
}

func (f frontier[N]) complete(p int, h history) bool {
	return f.next[p] == len(h.invs[p])
}

func (f frontier[N]) done(h history) bool {
	for p := range h.invs {
		if !f.complete(p, h) {
			return false
		}
	}
	return true
}

// legal applies the phase rule: initial first, final last.
func (f frontier[N]) legal(p int, h history) bool {
	last := len(h.invs) - 1
	switch {
	case f.complete(p, h):
		return false
	case p == 0:
		return true
	case p < last:
		return f.complete(0, h)
	default:
		for q := 0; q < last; q++ {
			if !f.complete(q, h) {
				return false
			}
		}
		return true
	}
}

// movable reports whether position next+d of part p may be replayed now.
// The first unreplayed position always may. A later one may only move
// ahead of relaxed invocations, or be relaxed itself.
func (f frontier[N]) movable(p, d int, h history) bool {
	if d == 0 {
		return true
	}
	base := f.next[p]
	if h.invs[p][base+d].Op.Relaxed {
		return true
	}
	for i := 0; i < d; i++ {
		if f.ahead[p]&(1<<i) == 0 && !h.invs[p][base+i].Op.Relaxed {
			return false
		}
	}
	return true
}

// advance returns the frontier reached by replaying position next+d of
// part p, landing in node n.
func (f frontier[N]) advance(n N, p, d int) frontier[N] {
	next := make([]int, len(f.next))
	copy(next, f.next)
	ahead := make([]uint64, len(f.ahead))
	copy(ahead, f.ahead)

	ahead[p] |= 1 << d
	for ahead[p]&1 != 0 {
		ahead[p] >>= 1
		next[p]++
	}
	return frontier[N]{node: n, next: next, ahead: ahead}
}

func (f frontier[N]) key(nodeKey func(N) string) string {
	var b strings.Builder
	for p, n := range f.next {
		b.WriteString(strconv.Itoa(n))
		if f.ahead[p] != 0 {
			b.WriteByte('+')
			b.WriteString(strconv.FormatUint(f.ahead[p], 16))
		}
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(nodeKey(f.node))
	return b.String()
}
