package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOps() (*Operation, *Operation) {
	put := &Operation{Name: "put"}
	get := &Operation{Name: "get"}
	return put, get
}

func TestScenarioHashDeterminism(t *testing.T) {
	put, get := testOps()
	build := func() *Scenario {
		return &Scenario{
			Initial:  []Invocation{{Op: put, Args: []IRValue{IRInt(1), IRString("a")}}},
			Parallel: [][]Invocation{{{Op: get, Args: []IRValue{IRInt(1)}}}, {}},
		}
	}

	h1, err := ScenarioHash(build())
	require.NoError(t, err)
	h2, err := ScenarioHash(build())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestScenarioHashChangesWithArgs(t *testing.T) {
	_, get := testOps()
	a := &Scenario{Parallel: [][]Invocation{{{Op: get, Args: []IRValue{IRInt(1)}}}}}
	b := &Scenario{Parallel: [][]Invocation{{{Op: get, Args: []IRValue{IRInt(2)}}}}}

	assert.NotEqual(t, MustScenarioHash(a), MustScenarioHash(b))
}

// TestScenarioHashThreadBoundaries tests that moving an invocation between
// threads changes the hash.
func TestScenarioHashThreadBoundaries(t *testing.T) {
	_, get := testOps()
	inv := Invocation{Op: get, Args: []IRValue{IRInt(1)}}
	a := &Scenario{Parallel: [][]Invocation{{inv, inv}, {}}}
	b := &Scenario{Parallel: [][]Invocation{{inv}, {inv}}}

	assert.NotEqual(t, MustScenarioHash(a), MustScenarioHash(b))
}

func TestResultHash(t *testing.T) {
	r1 := &ExecutionResult{Parallel: [][]Outcome{{ValueOutcome(IRInt(1))}}}
	r2 := &ExecutionResult{Parallel: [][]Outcome{{ValueOutcome(IRInt(1))}}}
	r3 := &ExecutionResult{Parallel: [][]Outcome{{ValueOutcome(IRString("1"))}}}

	assert.Equal(t, ResultHash(r1), ResultHash(r2))
	assert.NotEqual(t, ResultHash(r1), ResultHash(r3))
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t, hashWithDomain(DomainScenario, data), hashWithDomain(DomainResult, data))
	assert.NotEqual(t, hashWithDomain(DomainState, data), hashWithDomain(DomainResult, data))
}
