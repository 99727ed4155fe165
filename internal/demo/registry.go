package demo

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/verifier"
)

// Relaxation factors of the relaxed demo subjects.
const (
	StutterRun = 1
	StackK     = 3
	BatchK     = 3
)

// Entry is a named demo subject and the options that make its check
// pass, or fail on purpose.
type Entry struct {
	Name        string
	Description string

	// Broken subjects are expected to fail their check.
	Broken bool

	Subject func() *harness.Subject
	Options []harness.Option
}

var entries = []Entry{
	{
		Name:        "atomic-counter",
		Description: "counter with atomic increments",
		Subject:     AtomicCounter,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
	},
	{
		Name:        "racy-counter",
		Description: "counter with a read-then-write increment that loses updates",
		Broken:      true,
		Subject:     RacyCounter,
		Options: []harness.Option{
			harness.WithVerifier(verifier.KindLinearizability),
			harness.WithStrategy(harness.StrategyManaged),
		},
	},
	{
		Name:        "mutex-map",
		Description: "map guarded by a mutex",
		Subject:     MutexMap,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
	},
	{
		Name:        "treiber-stack",
		Description: "lock-free stack",
		Subject:     Treiber,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
	},
	{
		Name:        "stuttering-counter",
		Description: "counter whose increment may stutter once in a row",
		Subject:     func() *harness.Subject { return StutteringCounterSubject(StutterRun) },
		Options: []harness.Option{
			harness.WithVerifier(verifier.KindQuantitativeRelaxation),
			harness.WithRelaxation(StutterRun, verifier.PhiInterval),
		},
	},
	{
		Name:        "k-relaxed-stack",
		Description: "stack whose pop takes one of the 3 topmost values",
		Subject:     func() *harness.Subject { return KRelaxedStack(StackK) },
		Options: []harness.Option{
			harness.WithVerifier(verifier.KindQuantitativeRelaxation),
			harness.WithRelaxation(StackK-1, verifier.MaxCost),
		},
	},
	{
		Name:        "batched-counter",
		Description: "counter publishing increments up to 3 operations late",
		Subject:     func() *harness.Subject { return BatchedCounterSubject(BatchK) },
		Options: []harness.Option{
			harness.WithVerifier(verifier.KindQuasiLinearizability),
			harness.WithRelaxation(BatchK, verifier.MaxCost),
		},
	},
	{
		Name:        "mpsc-queue",
		Description: "multi-producer single-consumer queue with close",
		Subject:     QuiescentQueue,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindQuiescentConsistency)},
	},
	{
		Name:        "shuffle-queue",
		Description: "queue that shuffles buffered values on refill",
		Subject:     SerializableQueue,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindSerializability)},
	},
	{
		Name:        "hand-off",
		Description: "one-slot exchange using park and unpark",
		Subject:     HandOffSlot,
		Options:     []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
	},
}

// ErrUnknownSubject is returned by Lookup for a name nothing is registered
// under.
var ErrUnknownSubject = errors.New("unknown subject")

// Entries returns every demo subject in a stable order.
func Entries() []Entry {
	return slices.Clone(entries)
}

// Lookup returns the entry named name.
func Lookup(name string) (Entry, error) {
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return Entry{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownSubject, name, strings.Join(names, ", "))
}

// Resolve returns the subject of the entry named name, for example the
// subject recorded in a history file or an archived check.
func Resolve(name string) (*harness.Subject, error) {
	e, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return e.Subject(), nil
}
