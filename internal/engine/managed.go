package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// DefaultMaxCalls is the default call budget of one managed run.
const DefaultMaxCalls = 10000

// Managed runs workers cooperatively: exactly one worker executes at a
// time, and control changes hands only inside instrumentation callbacks.
//
// At every callback the scheduler asks its Policy which eligible worker
// proceeds. A worker is eligible unless it has finished, is parked without
// a permit, or waits for a lock held by another worker. When no worker is
// eligible but some have not finished, the run is a deadlock.
//
// Each run gets a fresh scheduler, policy and call budget; nothing leaks
// between runs.
type Managed struct {
	Policies PolicyFactory
	MaxCalls int

	mu   sync.Mutex
	last Trace
}

// NewManaged creates a managed strategy.
func NewManaged(policies PolicyFactory, maxCalls int) *Managed {
	return &Managed{Policies: policies, MaxCalls: maxCalls}
}

// Name implements Strategy.
func (m *Managed) Name() string {
	return "managed"
}

// LastTrace returns the switch events of the most recent run.
func (m *Managed) LastTrace() Trace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.last)
}

// RunParallel implements Strategy.
func (m *Managed) RunParallel(ctx context.Context, subject any, threads [][]ir.Invocation, attempt Attempt) ([][]ir.Outcome, error) {
	results := make([][]ir.Outcome, len(threads))
	if len(threads) == 0 {
		return results, nil
	}

	policies := m.Policies
	if policies == nil {
		policies = RandomPolicies(0, 0.5)
	}
	s := newScheduler(len(threads), policies(attempt), NewCallBudget(m.MaxCalls))

	errs := make([]error, len(threads))
	var wg sync.WaitGroup
	for i, invs := range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.work(i, subject, invs)
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	s.start()
	select {
	case <-finished:
	case <-ctx.Done():
		// A worker spinning inside the subject without reaching a callback
		// cannot be stopped; it is abandoned with the run.
		s.abort(NewTimeoutError(ctx.Err()))
	}

	s.mu.Lock()
	trace := slices.Clone(s.trace)
	s.mu.Unlock()
	m.mu.Lock()
	m.last = trace
	m.mu.Unlock()

	if err := s.abortErr(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// SwitchKind names the callback that produced a scheduling decision.
type SwitchKind string

const (
	SwitchStart   SwitchKind = "start"
	SwitchRead    SwitchKind = "read"
	SwitchWrite   SwitchKind = "write"
	SwitchAcquire SwitchKind = "acquire"
	SwitchRelease SwitchKind = "release"
	SwitchPark    SwitchKind = "park"
	SwitchUnpark  SwitchKind = "unpark"
	SwitchFinish  SwitchKind = "finish"
)

// SwitchEvent records one scheduling decision. From and To are thread ids
// (worker index + 1); From is 0 when no worker was running.
type SwitchEvent struct {
	Seq  int64
	Kind SwitchKind
	From int
	To   int
	Site int
}

// Trace is the ordered list of scheduling decisions of one run.
type Trace []SwitchEvent

// Switches counts the events where control moved to another worker.
func (t Trace) Switches() int {
	n := 0
	for _, e := range t {
		if e.From != 0 && e.From != e.To {
			n++
		}
	}
	return n
}

// scheduler implements instr.Scheduler for one managed run.
//
// All bookkeeping is guarded by mu. A worker blocks only in wait(), on its
// own resume channel, so aborting the run (closing aborted) releases every
// blocked worker.
type scheduler struct {
	mu     sync.Mutex
	policy Policy
	budget *CallBudget
	clock  *Clock
	trace  Trace

	n           int
	resume      []chan struct{}
	finished    []bool
	parked      []bool
	permits     []bool
	waitingLock []int
	lockOwner   map[int]int

	aborted   chan struct{}
	abortOnce sync.Once
	err       error
}

var _ instr.Scheduler = (*scheduler)(nil)

func newScheduler(n int, policy Policy, budget *CallBudget) *scheduler {
	s := &scheduler{
		policy:      policy,
		budget:      budget,
		clock:       NewClock(),
		n:           n,
		resume:      make([]chan struct{}, n),
		finished:    make([]bool, n),
		parked:      make([]bool, n),
		permits:     make([]bool, n),
		waitingLock: make([]int, n),
		lockOwner:   make(map[int]int),
		aborted:     make(chan struct{}),
	}
	for i := range s.resume {
		s.resume[i] = make(chan struct{}, 1)
	}
	return s
}

// work runs one worker's invocations under the scheduler.
func (s *scheduler) work(w int, subject any, invs []ir.Invocation) (outs []ir.Outcome, err error) {
	th := instr.NewThread(w+1, s)
	defer func() {
		if r := recover(); r != nil {
			if a, ok := r.(abortSignal); ok {
				outs, err = nil, a.err
				return
			}
			err = NewRunFault(w+1, "", &panicError{value: r})
			s.abort(err)
			outs = nil
		}
	}()

	s.wait(w)
	outs = make([]ir.Outcome, len(invs))
	for j, inv := range invs {
		out, err := execute(th, subject, inv)
		if err != nil {
			s.abort(err)
			return nil, err
		}
		outs[j] = out
	}
	s.finish(w)
	return outs, nil
}

// start hands control to the first worker.
func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handOffLocked(-1, SwitchStart, 0)
}

// finish marks w done and hands control to another worker.
func (s *scheduler) finish(w int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[w] = true
	s.handOffLocked(-1, SwitchFinish, 0)
}

// handOffLocked picks the next worker when no worker keeps running.
// Must hold mu.
func (s *scheduler) handOffLocked(from int, kind SwitchKind, site int) {
	eligible := s.eligibleLocked()
	if len(eligible) == 0 {
		if blocked := s.unfinishedLocked(); len(blocked) > 0 {
			s.abortLocked(NewDeadlockError(blocked))
		}
		return
	}
	next := s.policy.Choose(from, eligible)
	s.recordLocked(kind, from, next, site)
	s.resume[next] <- struct{}{}
}

// point is a scheduling point reached by running worker w. It returns once
// w may proceed, possibly after other workers ran. Must hold mu; releases
// it.
func (s *scheduler) point(w int, kind SwitchKind, site int) {
	if err := s.budget.Check(); err != nil {
		s.abortLocked(&RunError{Code: ErrCodeCallBudget, Message: "managed run passed too many scheduling points", Cause: err})
		s.mu.Unlock()
		panic(abortSignal{err: s.err})
	}

	eligible := s.eligibleLocked()
	if len(eligible) == 0 {
		s.abortLocked(NewDeadlockError(s.unfinishedLocked()))
		s.mu.Unlock()
		panic(abortSignal{err: s.err})
	}

	next := s.policy.Choose(w, eligible)
	s.recordLocked(kind, w, next, site)
	if next == w {
		s.mu.Unlock()
		return
	}
	s.resume[next] <- struct{}{}
	s.mu.Unlock()
	s.wait(w)
}

// wait blocks worker w until it is resumed or the run is aborted.
func (s *scheduler) wait(w int) {
	select {
	case <-s.resume[w]:
	case <-s.aborted:
		panic(abortSignal{err: s.abortErr()})
	}
}

// enter locks mu, panicking out if the run was aborted meanwhile.
func (s *scheduler) enter() {
	s.mu.Lock()
	select {
	case <-s.aborted:
		s.mu.Unlock()
		panic(abortSignal{err: s.abortErr()})
	default:
	}
}

func (s *scheduler) isAborted() bool {
	select {
	case <-s.aborted:
		return true
	default:
		return false
	}
}

func (s *scheduler) eligibleLocked() []int {
	var out []int
	for w := 0; w < s.n; w++ {
		if s.finished[w] || s.parked[w] {
			continue
		}
		// a held lock blocks every waiter, its owner included: locks are
		// not reentrant
		if lock := s.waitingLock[w]; lock != 0 {
			if _, held := s.lockOwner[lock]; held {
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

func (s *scheduler) unfinishedLocked() []int {
	var out []int
	for w := 0; w < s.n; w++ {
		if !s.finished[w] {
			out = append(out, w+1)
		}
	}
	return out
}

func (s *scheduler) recordLocked(kind SwitchKind, from, to, site int) {
	s.trace = append(s.trace, SwitchEvent{
		Seq:  s.clock.Next(),
		Kind: kind,
		From: from + 1,
		To:   to + 1,
		Site: site,
	})
}

func (s *scheduler) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked(err)
}

func (s *scheduler) abortLocked(err error) {
	s.abortOnce.Do(func() {
		s.err = err
		close(s.aborted)
	})
}

func (s *scheduler) abortErr() error {
	if !s.isAborted() {
		return nil
	}
	return s.err
}

// BeforeSharedRead implements instr.Scheduler.
func (s *scheduler) BeforeSharedRead(thread, site int) {
	s.enter()
	s.point(thread-1, SwitchRead, site)
}

// BeforeSharedWrite implements instr.Scheduler.
func (s *scheduler) BeforeSharedWrite(thread, site int) {
	s.enter()
	s.point(thread-1, SwitchWrite, site)
}

// BeforeLockAcquire implements instr.Scheduler. It returns only once the
// lock is free, and records the caller as its owner.
func (s *scheduler) BeforeLockAcquire(thread, site, lock int) {
	w := thread - 1
	s.enter()
	s.waitingLock[w] = lock
	s.point(w, SwitchAcquire, site)

	s.mu.Lock()
	s.waitingLock[w] = 0
	s.lockOwner[lock] = w
	s.mu.Unlock()
}

// AfterLockRelease implements instr.Scheduler.
func (s *scheduler) AfterLockRelease(thread, site, lock int) {
	if s.isAborted() {
		return
	}
	s.enter()
	delete(s.lockOwner, lock)
	s.point(thread-1, SwitchRelease, site)
}

// BeforePark implements instr.Scheduler. An untimed park without a permit
// makes the caller ineligible until another worker unparks it. A timed park
// is a plain scheduling point that consumes any pending permit.
func (s *scheduler) BeforePark(thread, site int, hasTimeout bool) {
	w := thread - 1
	s.enter()
	switch {
	case s.permits[w]:
		s.permits[w] = false
	case hasTimeout:
	default:
		s.parked[w] = true
	}
	s.point(w, SwitchPark, site)
}

// AfterUnpark implements instr.Scheduler.
func (s *scheduler) AfterUnpark(thread, site, target int) {
	if s.isAborted() {
		return
	}
	s.enter()
	if t := target - 1; t >= 0 && t < s.n {
		if s.parked[t] {
			s.parked[t] = false
		} else {
			s.permits[t] = true
		}
	}
	s.point(thread-1, SwitchUnpark, site)
}
