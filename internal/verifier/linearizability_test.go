package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interleave/internal/ir"
)

// TestLinearizability_MapPutGet tests the put/get visibility cases.
func TestLinearizability_MapPutGet(t *testing.T) {
	s := &ir.Scenario{Parallel: [][]ir.Invocation{
		{call(opPut, ir.IRInt(1), ir.IRString("a"))},
		{call(opGet, ir.IRInt(1))},
	}}

	tests := []struct {
		name string
		get  ir.Outcome
		want bool
	}{
		{"get sees put", val("a"), true},
		{"get before put", val(nil), true},
		{"value never written", val("z"), false},
	}

	v := NewLinearizability(newKV)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ir.ExecutionResult{Parallel: [][]ir.Outcome{{val(nil)}, {tt.get}}}
			ok, err := v.Verify(s, r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// TestLinearizability_SequentialParts tests that scenarios without a
// parallel part verify iff sequential replay reproduces the outcomes.
func TestLinearizability_SequentialParts(t *testing.T) {
	s := &ir.Scenario{
		Initial: []ir.Invocation{call(opPut, ir.IRInt(1), ir.IRString("a"))},
		Final:   []ir.Invocation{call(opGet, ir.IRInt(1)), call(opPut, ir.IRInt(1), ir.IRString("b"))},
	}
	v := NewLinearizability(newKV)

	ok, err := v.Verify(s, &ir.ExecutionResult{
		Initial: []ir.Outcome{val(nil)},
		Final:   []ir.Outcome{val("a"), val("a")},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(s, &ir.ExecutionResult{
		Initial: []ir.Outcome{val(nil)},
		Final:   []ir.Outcome{val("a"), val(nil)},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify(&ir.Scenario{}, &ir.ExecutionResult{})
	require.NoError(t, err)
	assert.True(t, ok, "empty scenario is trivially explainable")
}

// TestLinearizability_PhasesAreOrdered tests that the initial part happens
// before and the final part after every parallel invocation.
func TestLinearizability_PhasesAreOrdered(t *testing.T) {
	write, read := registerOps(false)
	s := &ir.Scenario{
		Initial:  []ir.Invocation{call(read)},
		Parallel: [][]ir.Invocation{{call(write, ir.IRInt(7))}, {}},
		Final:    []ir.Invocation{call(read)},
	}
	v := NewLinearizability(newRegister)

	ok, err := v.Verify(s, &ir.ExecutionResult{
		Initial:  []ir.Outcome{val(0)},
		Parallel: [][]ir.Outcome{{void}, {}},
		Final:    []ir.Outcome{val(7)},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// the final read cannot precede the parallel write
	ok, err = v.Verify(s, &ir.ExecutionResult{
		Initial:  []ir.Outcome{val(0)},
		Parallel: [][]ir.Outcome{{void}, {}},
		Final:    []ir.Outcome{val(0)},
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// nor can the initial read follow it
	ok, err = v.Verify(s, &ir.ExecutionResult{
		Initial:  []ir.Outcome{val(7)},
		Parallel: [][]ir.Outcome{{void}, {}},
		Final:    []ir.Outcome{val(7)},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

// crossedReads is the history where each thread writes then reads the
// other thread's value. Some total order explains it; none that respects
// thread order does.
func crossedReads(boundary bool) (*ir.Scenario, *ir.ExecutionResult) {
	write, read := registerOps(boundary)
	s := &ir.Scenario{Parallel: [][]ir.Invocation{
		{call(write, ir.IRInt(1)), call(read)},
		{call(write, ir.IRInt(2)), call(read)},
	}}
	r := &ir.ExecutionResult{Parallel: [][]ir.Outcome{
		{void, val(2)},
		{void, val(1)},
	}}
	return s, r
}

// TestSerializability_WeakerThanLinearizability tests a history accepted
// by serializability and rejected by linearizability.
func TestSerializability_WeakerThanLinearizability(t *testing.T) {
	s, r := crossedReads(false)

	ok, err := NewLinearizability(newRegister).Verify(s, r)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = NewSerializability(newRegister).Verify(s, r)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestSerializability_StillRequiresSomeOrder tests that serializability
// rejects outcomes no order can produce.
func TestSerializability_StillRequiresSomeOrder(t *testing.T) {
	write, read := registerOps(false)
	s := &ir.Scenario{
		Initial:  []ir.Invocation{call(write, ir.IRInt(1))},
		Parallel: [][]ir.Invocation{{call(read)}},
	}
	r := &ir.ExecutionResult{Initial: []ir.Outcome{void}, Parallel: [][]ir.Outcome{{val(3)}}}

	ok, err := NewSerializability(newRegister).Verify(s, r)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestQuiescentConsistency_DetachesBoundaries tests that marked invocations
// lose their thread order.
func TestQuiescentConsistency_DetachesBoundaries(t *testing.T) {
	s, r := crossedReads(true)
	ok, err := NewQuiescentConsistency(newRegister).Verify(s, r)
	require.NoError(t, err)
	assert.True(t, ok)

	s, r = crossedReads(false)
	ok, err = NewQuiescentConsistency(newRegister).Verify(s, r)
	require.NoError(t, err)
	assert.False(t, ok, "without markers quiescent consistency is linearizability")
}

// TestQuiescentConsistency_SingletonThreadsStay tests that a marked
// invocation alone in its thread is checked as usual.
func TestQuiescentConsistency_SingletonThreadsStay(t *testing.T) {
	write, read := registerOps(true)
	s := &ir.Scenario{
		Parallel: [][]ir.Invocation{{call(write, ir.IRInt(1))}, {call(read)}},
	}
	v := NewQuiescentConsistency(newRegister)

	ok, err := v.Verify(s, &ir.ExecutionResult{Parallel: [][]ir.Outcome{{void}, {val(1)}}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(s, &ir.ExecutionResult{Parallel: [][]ir.Outcome{{void}, {val(5)}}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetachBoundaries_Layout(t *testing.T) {
	write, read := registerOps(true)
	h := history{
		invs: [][]ir.Invocation{
			nil,
			{call(read), call(write, ir.IRInt(1)), call(read)},
			{call(write, ir.IRInt(2))},
			nil,
		},
		outs: [][]ir.Outcome{
			nil,
			{val(0), void, val(1)},
			{void},
			nil,
		},
	}

	got := detachBoundaries(h)
	require.Len(t, got.invs, 5)
	assert.Len(t, got.invs[1], 2, "marked write left thread 1")
	assert.Len(t, got.invs[2], 1, "single marked write stays")
	assert.Equal(t, "write", got.invs[3][0].Name())
	assert.Equal(t, void, got.outs[3][0])
	assert.Empty(t, got.invs[4])
}
