package instr

import "sync/atomic"

// Scheduler receives interception callbacks from instrumented subjects.
//
// Every Before* callback runs before the access takes effect and may block
// the calling worker until the scheduler lets it proceed. After* callbacks
// run once the release or unpark has already happened.
type Scheduler interface {
	BeforeSharedRead(thread, site int)
	BeforeSharedWrite(thread, site int)
	BeforeLockAcquire(thread, site, lock int)
	AfterLockRelease(thread, site, lock int)
	BeforePark(thread, site int, hasTimeout bool)
	AfterUnpark(thread, site, target int)
}

// Thread is the explicit handle a worker threads through every
// instrumented access. It identifies the logical worker and carries the
// scheduler that is active for the current run.
type Thread struct {
	id    int
	sched Scheduler
}

// NewThread creates a handle for logical worker id.
// A nil scheduler disables interception.
func NewThread(id int, sched Scheduler) *Thread {
	return &Thread{id: id, sched: sched}
}

// Sequential returns a handle with no scheduler, for single-threaded use
// such as reference replay.
func Sequential() *Thread {
	return &Thread{id: 0}
}

// ID returns the logical worker id.
func (t *Thread) ID() int {
	if t == nil {
		return 0
	}
	return t.id
}

// Scheduler returns the active scheduler, or nil.
func (t *Thread) Scheduler() Scheduler {
	if t == nil {
		return nil
	}
	return t.sched
}

func (t *Thread) read(site int) {
	if s := t.Scheduler(); s != nil {
		s.BeforeSharedRead(t.id, site)
	}
}

func (t *Thread) write(site int) {
	if s := t.Scheduler(); s != nil {
		s.BeforeSharedWrite(t.id, site)
	}
}

// Site ids identify instrumented variables and locks. They are unique per
// process; schedulers only use them for diagnostics and lock bookkeeping.
var nextSite atomic.Int64

func newSite() int {
	return int(nextSite.Add(1))
}
