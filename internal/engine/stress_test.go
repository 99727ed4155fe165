package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interleave/internal/ir"
)

func TestStress_MaxWaitGrowsOverAttempts(t *testing.T) {
	s := NewStress(7)

	assert.Equal(t, 1, s.maxWait(Attempt{Index: 0, Total: 10}))
	assert.Equal(t, 501, s.maxWait(Attempt{Index: 5, Total: 10}))
	assert.Equal(t, 901, s.maxWait(Attempt{Index: 9, Total: 10}))
	assert.Equal(t, 1, s.maxWait(Attempt{}))
}

func TestStress_PreservesThreadOrder(t *testing.T) {
	s := NewStress(3)
	threads := [][]ir.Invocation{
		{call(opIncr), call(opIncr), call(opIncr)},
		{call(opIncr), call(opIncr)},
	}

	for i := range 20 {
		outs, err := s.RunParallel(context.Background(), newCounter(), threads, Attempt{Index: i, Total: 20})
		require.NoError(t, err)
		require.Len(t, outs, 2)
		require.Len(t, outs[0], 3)
		require.Len(t, outs[1], 2)

		// each thread observes its own increments in increasing order
		for _, th := range outs {
			vs := ints(th)
			for j := 1; j < len(vs); j++ {
				assert.Less(t, vs[j-1], vs[j])
			}
		}
		assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, ints(outs...))
	}
}

func TestStress_NoThreads(t *testing.T) {
	outs, err := NewStress(1).RunParallel(context.Background(), newCounter(), nil, Attempt{Total: 1})
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestStress_FirstFaultAbortsRun(t *testing.T) {
	threads := [][]ir.Invocation{{call(opPanic)}, {call(opIncr)}}

	_, err := NewStress(1).RunParallel(context.Background(), newCounter(), threads, Attempt{Total: 1})
	require.Error(t, err)
	assert.True(t, IsRunFault(err))
}

func TestConsumeCPU_ZeroIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		consumeCPU(0)
		consumeCPU(1000)
	})
}
