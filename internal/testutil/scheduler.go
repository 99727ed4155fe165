package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// RecordingScheduler records every instrumentation callback it receives
// and never blocks. It satisfies instr.Scheduler.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type RecordingScheduler struct {
	mu     sync.Mutex
	events []string
}

// NewRecordingScheduler creates an empty recorder.
func NewRecordingScheduler() *RecordingScheduler {
	return &RecordingScheduler{}
}

func (r *RecordingScheduler) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events in arrival order.
// Each event is "<callback> t=<thread>" plus callback-specific fields.
func (r *RecordingScheduler) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *RecordingScheduler) BeforeSharedRead(thread, site int) {
	r.record("read t=%d", thread)
}

func (r *RecordingScheduler) BeforeSharedWrite(thread, site int) {
	r.record("write t=%d", thread)
}

func (r *RecordingScheduler) BeforeLockAcquire(thread, site, lock int) {
	r.record("acquire t=%d", thread)
}

func (r *RecordingScheduler) AfterLockRelease(thread, site, lock int) {
	r.record("release t=%d", thread)
}

func (r *RecordingScheduler) BeforePark(thread, site int, hasTimeout bool) {
	r.record("park t=%d timeout=%t", thread, hasTimeout)
}

func (r *RecordingScheduler) AfterUnpark(thread, site, target int) {
	r.record("unpark t=%d target=%d", thread, target)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
