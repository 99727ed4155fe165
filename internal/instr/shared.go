package instr

import (
	"sync"
	"sync/atomic"
	"time"
)

// siteFor returns the site id stored in p, assigning one on first use.
// Ids are only assigned while a scheduler is active, so values that never
// run under interception (reference replay) keep a zero id and stay
// structurally comparable across instances.
func siteFor(t *Thread, p *atomic.Int64) int {
	if t.Scheduler() == nil {
		return 0
	}
	if v := p.Load(); v != 0 {
		return int(v)
	}
	n := int64(newSite())
	if p.CompareAndSwap(0, n) {
		return int(n)
	}
	return int(p.Load())
}

// Int64 is an instrumented atomic integer. The zero value is ready to use.
type Int64 struct {
	v    atomic.Int64
	site atomic.Int64
}

// Load reads the value.
func (x *Int64) Load(t *Thread) int64 {
	t.read(siteFor(t, &x.site))
	return x.v.Load()
}

// Store writes the value.
func (x *Int64) Store(t *Thread, v int64) {
	t.write(siteFor(t, &x.site))
	x.v.Store(v)
}

// Add atomically adds delta and returns the new value.
func (x *Int64) Add(t *Thread, delta int64) int64 {
	t.write(siteFor(t, &x.site))
	return x.v.Add(delta)
}

// CompareAndSwap atomically replaces old with new.
func (x *Int64) CompareAndSwap(t *Thread, old, new int64) bool {
	t.write(siteFor(t, &x.site))
	return x.v.CompareAndSwap(old, new)
}

// Ref is an instrumented atomic pointer. The zero value holds nil.
type Ref[T any] struct {
	p    atomic.Pointer[T]
	site atomic.Int64
}

// Load reads the pointer.
func (r *Ref[T]) Load(t *Thread) *T {
	t.read(siteFor(t, &r.site))
	return r.p.Load()
}

// Store writes the pointer.
func (r *Ref[T]) Store(t *Thread, v *T) {
	t.write(siteFor(t, &r.site))
	r.p.Store(v)
}

// CompareAndSwap atomically replaces old with new if the current pointer
// is old.
func (r *Ref[T]) CompareAndSwap(t *Thread, old, new *T) bool {
	t.write(siteFor(t, &r.site))
	return r.p.CompareAndSwap(old, new)
}

// Mutex is an instrumented mutual exclusion lock.
//
// Under a scheduler, BeforeLockAcquire returns only once the scheduler has
// granted the lock to the caller, so the underlying Lock never contends.
type Mutex struct {
	mu   sync.Mutex
	site atomic.Int64
}

// Lock acquires the mutex.
func (m *Mutex) Lock(t *Thread) {
	if s := t.Scheduler(); s != nil {
		id := siteFor(t, &m.site)
		s.BeforeLockAcquire(t.ID(), id, id)
	}
	m.mu.Lock()
}

// Unlock releases the mutex.
func (m *Mutex) Unlock(t *Thread) {
	m.mu.Unlock()
	if s := t.Scheduler(); s != nil {
		id := siteFor(t, &m.site)
		s.AfterLockRelease(t.ID(), id, id)
	}
}

// Parker provides per-thread park/unpark with a single saturating permit
// per thread, like a binary semaphore owned by each worker.
type Parker struct {
	mu      sync.Mutex
	permits map[int]chan struct{}
	site    atomic.Int64
}

func (p *Parker) permit(thread int) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.permits == nil {
		p.permits = make(map[int]chan struct{})
	}
	ch, ok := p.permits[thread]
	if !ok {
		ch = make(chan struct{}, 1)
		p.permits[thread] = ch
	}
	return ch
}

// Park blocks the calling thread until its permit is available, then
// consumes it.
//
// Under a scheduler, a permit that is already available is reported as a
// timed park, which cannot block. The scheduler does not see permits
// granted before it started, such as an unpark in the initial part.
func (p *Parker) Park(t *Thread) {
	ch := p.permit(t.ID())
	if s := t.Scheduler(); s != nil {
		select {
		case <-ch:
			s.BeforePark(t.ID(), siteFor(t, &p.site), true)
			return
		default:
		}
		s.BeforePark(t.ID(), siteFor(t, &p.site), false)
	}
	<-ch
}

// ParkTimeout parks for at most d. It reports whether a permit was
// consumed. Under a scheduler a timed park is a yield point followed by a
// non-blocking permit check.
func (p *Parker) ParkTimeout(t *Thread, d time.Duration) bool {
	ch := p.permit(t.ID())
	if s := t.Scheduler(); s != nil {
		s.BeforePark(t.ID(), siteFor(t, &p.site), true)
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// Unpark makes the permit of target available.
func (p *Parker) Unpark(t *Thread, target int) {
	ch := p.permit(target)
	select {
	case ch <- struct{}{}:
	default:
	}
	if s := t.Scheduler(); s != nil {
		s.AfterUnpark(t.ID(), siteFor(t, &p.site), target)
	}
}
