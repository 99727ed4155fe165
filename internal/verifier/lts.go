package verifier

import (
	"fmt"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"github.com/roach88/interleave/internal/ir"
)

// StateKeyer is implemented by reference models that can name their own
// state. Two instances with equal keys must answer every future
// invocation identically.
//
// Models that do not implement it are fingerprinted structurally, which
// requires their state to be free of channels and functions.
type StateKeyer interface {
	StateKey() string
}

// ModelFactory creates a fresh reference model instance in its initial
// state.
type ModelFactory func() any

var fingerprinter = spew.ConfigState{
	Indent:                  " ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
	SpewKeys:                true,
}

// stateKey names the state of model instance m.
func stateKey(m any) string {
	if k, ok := m.(StateKeyer); ok {
		return "key:" + k.StateKey()
	}
	return "spew:" + ir.StateHash(fingerprinter.Sdump(m))
}

// lts is the labelled transition system induced by a reference model.
//
// States are interned by key. Each state remembers the invocation path
// that first reached it; transitions are computed lazily by replaying that
// path on a fresh instance and then applying one more invocation.
// Transitions are deterministic, so the cache may be shared by every
// verification of the same model.
//
// Thread-safety: all methods are safe for concurrent use.
type lts struct {
	factory ModelFactory

	mu      sync.Mutex
	states  map[string]*state
	initial *state
}

type state struct {
	key         string
	path        []ir.Invocation
	transitions map[string]transition
}

type transition struct {
	outcome ir.Outcome
	next    *state
}

func newLTS(factory ModelFactory) *lts {
	return &lts{factory: factory, states: make(map[string]*state)}
}

// start returns the initial state.
func (l *lts) start() (*state, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initial != nil {
		return l.initial, nil
	}
	m, err := l.create()
	if err != nil {
		return nil, err
	}
	l.initial = l.intern(stateKey(m), nil)
	return l.initial, nil
}

// next applies inv to s and returns the produced outcome and the
// successor state.
func (l *lts) next(s *state, inv ir.Invocation) (ir.Outcome, *state, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := inv.Key()
	if t, ok := s.transitions[key]; ok {
		return t.outcome, t.next, nil
	}

	m, err := l.create()
	if err != nil {
		return ir.Outcome{}, nil, err
	}
	for _, prev := range s.path {
		if _, err := replay(m, prev); err != nil {
			return ir.Outcome{}, nil, err
		}
	}
	out, err := replay(m, inv)
	if err != nil {
		return ir.Outcome{}, nil, err
	}

	path := make([]ir.Invocation, len(s.path)+1)
	copy(path, s.path)
	path[len(s.path)] = inv
	next := l.intern(stateKey(m), path)

	s.transitions[key] = transition{outcome: out, next: next}
	return out, next, nil
}

// size returns the number of distinct states discovered so far.
func (l *lts) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func (l *lts) intern(key string, path []ir.Invocation) *state {
	if s, ok := l.states[key]; ok {
		return s
	}
	s := &state{key: key, path: path, transitions: make(map[string]transition)}
	l.states[key] = s
	return s
}

func (l *lts) create() (m any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ModelError{Invocation: "<factory>", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return l.factory(), nil
}

// replay applies one invocation to a model instance sequentially.
func replay(m any, inv ir.Invocation) (out ir.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ModelError{Invocation: inv.String(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = inv.ExecuteModel(m)
	if err != nil {
		return ir.Outcome{}, &ModelError{Invocation: inv.String(), Cause: err}
	}
	return out, nil
}
