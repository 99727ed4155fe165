package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interleave/internal/instr"
)

var errEmpty = errors.New("empty")

func TestOutcomeEquality(t *testing.T) {
	assert.True(t, VoidOutcome().Equal(VoidOutcome()))
	assert.True(t, ValueOutcome(IRInt(1)).Equal(ValueOutcome(IRInt(1))))
	assert.True(t, ValueOutcome(nil).Equal(ValueOutcome(IRNull{})))
	assert.True(t, ErrorOutcome("Empty").Equal(ErrorOutcome("Empty")))

	assert.False(t, VoidOutcome().Equal(ValueOutcome(IRNull{})))
	assert.False(t, ValueOutcome(IRInt(1)).Equal(ValueOutcome(IRString("1"))))
	assert.False(t, ErrorOutcome("Empty").Equal(ErrorOutcome("Full")))
	assert.False(t, ValueOutcome(IRArray{IRInt(1)}).Equal(ValueOutcome(IRArray{IRInt(2)})))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "void", VoidOutcome().String())
	assert.Equal(t, "null", ValueOutcome(nil).String())
	assert.Equal(t, "5", ValueOutcome(IRInt(5)).String())
	assert.Equal(t, "Empty", ErrorOutcome("Empty").String())
}

func TestOutcomeJSONRoundTrip(t *testing.T) {
	for _, o := range []Outcome{
		VoidOutcome(),
		ValueOutcome(IRNull{}),
		ValueOutcome(IRObject{"k": IRArray{IRInt(1)}}),
		ErrorOutcome("Empty"),
	} {
		data, err := json.Marshal(o)
		require.NoError(t, err)

		var back Outcome
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, o.Equal(back), "round trip of %s gave %s", o, back)
	}
}

func TestInvocationExecute(t *testing.T) {
	op := &Operation{
		Name:    "pop",
		Handled: []HandledError{{Name: "Empty", Target: errEmpty}},
		Run: func(_ *instr.Thread, subject any, args []IRValue) (IRValue, error) {
			s := subject.(*[]int64)
			if len(*s) == 0 {
				return nil, fmt.Errorf("pop: %w", errEmpty)
			}
			v := (*s)[len(*s)-1]
			*s = (*s)[:len(*s)-1]
			return IRInt(v), nil
		},
	}
	stack := []int64{4}
	inv := Invocation{Op: op}

	out, err := inv.Execute(instr.Sequential(), &stack)
	require.NoError(t, err)
	assert.True(t, out.Equal(ValueOutcome(IRInt(4))))

	out, err = inv.Execute(instr.Sequential(), &stack)
	require.NoError(t, err, "wrapped handled error is an outcome")
	assert.True(t, out.Equal(ErrorOutcome("Empty")))
}

func TestInvocationExecuteUnhandled(t *testing.T) {
	boom := errors.New("boom")
	op := &Operation{
		Name: "fail",
		Run: func(*instr.Thread, any, []IRValue) (IRValue, error) {
			return nil, boom
		},
	}

	_, err := Invocation{Op: op}.Execute(instr.Sequential(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestInvocationExecuteModel(t *testing.T) {
	op := &Operation{
		Name:  "id",
		Run:   func(*instr.Thread, any, []IRValue) (IRValue, error) { return IRString("real"), nil },
		Model: func(*instr.Thread, any, []IRValue) (IRValue, error) { return IRString("model"), nil },
	}

	out, err := Invocation{Op: op}.ExecuteModel(nil)
	require.NoError(t, err)
	assert.Equal(t, "model", out.String())

	op.Model = nil
	out, err = Invocation{Op: op}.ExecuteModel(nil)
	require.NoError(t, err)
	assert.Equal(t, "real", out.String())
}

func TestInvocationKeyAndString(t *testing.T) {
	op := &Operation{Name: "put"}
	inv := Invocation{Op: op, Args: []IRValue{IRInt(1), IRString("a")}}

	assert.Equal(t, `put[1,"a"]`, inv.Key())
	assert.Equal(t, "put(1, a)", inv.String())
}

func TestExecutionResultMatchesShape(t *testing.T) {
	op := &Operation{Name: "x"}
	s := &Scenario{
		Initial:  []Invocation{{Op: op}},
		Parallel: [][]Invocation{{{Op: op}, {Op: op}}, {}},
	}

	good := &ExecutionResult{
		Initial:  []Outcome{VoidOutcome()},
		Parallel: [][]Outcome{{VoidOutcome(), VoidOutcome()}, {}},
	}
	bad := &ExecutionResult{
		Initial:  []Outcome{VoidOutcome()},
		Parallel: [][]Outcome{{VoidOutcome()}, {VoidOutcome()}},
	}

	assert.True(t, good.MatchesShape(s))
	assert.False(t, bad.MatchesShape(s))
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, 2, s.Threads())
}

func TestScenarioRecordResolve(t *testing.T) {
	put := &Operation{Name: "put"}
	get := &Operation{Name: "get"}
	s := &Scenario{
		Initial:  []Invocation{{Op: put, Args: []IRValue{IRInt(1)}}},
		Parallel: [][]Invocation{{{Op: get, Args: []IRValue{IRInt(1)}}}, {}},
		Final:    []Invocation{{Op: get, Args: []IRValue{IRInt(2)}}},
	}
	ops := map[string]*Operation{"put": put, "get": get}
	lookup := func(name string) (*Operation, bool) {
		op, ok := ops[name]
		return op, ok
	}

	data, err := json.Marshal(s.Record())
	require.NoError(t, err)

	var rec ScenarioRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	back, err := rec.Resolve(lookup)
	require.NoError(t, err)

	assert.Equal(t, MustScenarioHash(s), MustScenarioHash(back))
	assert.Same(t, put, back.Initial[0].Op)

	rec.Final[0].Op = "missing"
	_, err = rec.Resolve(lookup)
	assert.ErrorContains(t, err, "unknown operation")
}

func TestExecutionResultJSON(t *testing.T) {
	r := &ExecutionResult{
		Initial:  []Outcome{VoidOutcome()},
		Parallel: [][]Outcome{{ValueOutcome(IRInt(1))}, {ErrorOutcome("Empty")}},
		Final:    []Outcome{},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back ExecutionResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Key(), back.Key())
}
