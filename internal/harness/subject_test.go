package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/paramgen"
)

func TestBuilder_Operations(t *testing.T) {
	s, err := NewSubject("queue", newCounter).
		Operation("offer", Run(incr), Params(paramgen.IntGen{Begin: 1, End: 3}), Group("producer")).
		Operation("poll", Run(decr), Handles("Empty", errEmpty), Group("consumer"), Relaxed()).
		Operation("close", Run(get), RunOnce(), QuiescentBoundary()).
		NonParallelGroup("consumer").
		NonParallelGroup("consumer").
		Build()
	require.NoError(t, err)

	require.Len(t, s.Operations, 3)
	assert.Equal(t, []string{"consumer"}, s.NonParallelGroups)

	offer, ok := s.Operation("offer")
	require.True(t, ok)
	assert.Len(t, offer.Params, 1)
	assert.Equal(t, "producer", offer.Group)

	poll, _ := s.Operation("poll")
	assert.True(t, poll.Relaxed)
	name, ok := poll.HandledName(errEmpty)
	assert.True(t, ok)
	assert.Equal(t, "Empty", name)

	closeOp, _ := s.Operation("close")
	assert.True(t, closeOp.RunOnce)
	assert.True(t, closeOp.QuiescentBoundary)

	_, ok = s.Operation("peek")
	assert.False(t, ok)
}

func TestBuilder_ModelDefaultsToFactory(t *testing.T) {
	s := atomicCounter()
	assert.Nil(t, s.Model)
	assert.IsType(t, &counter{}, s.model()())

	type reference struct{ n int }
	s = NewSubject("c", newCounter).
		Model(func() any { return &reference{} }).
		Operation("get", Run(get), ModelRun(func(*instr.Thread, any, []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(0), nil
		})).
		MustBuild()
	assert.IsType(t, &reference{}, s.model()())
	op, _ := s.Operation("get")
	assert.NotNil(t, op.Model)
}

// TestBuilder_Errors tests that descriptor problems surface as
// ConfigErrors with the right code.
func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (*Subject, error)
		code    ConfigErrorCode
		message string
	}{
		{
			name:    "no operations",
			build:   NewSubject("empty", newCounter).Build,
			code:    ErrCodeNoOperations,
			message: "subject empty declares no operations",
		},
		{
			name:    "no factory",
			build:   NewSubject("nil", nil).Operation("get", Run(get)).Build,
			code:    ErrCodeBadParam,
			message: "subject nil has no factory",
		},
		{
			name:    "unnamed operation",
			build:   NewSubject("c", newCounter).Operation("", Run(get)).Build,
			code:    ErrCodeBadParam,
			message: "operation without a name",
		},
		{
			name:    "duplicate operation",
			build:   NewSubject("c", newCounter).Operation("get", Run(get)).Operation("get", Run(get)).Build,
			code:    ErrCodeBadParam,
			message: "duplicate operation get",
		},
		{
			name:    "nil body",
			build:   NewSubject("c", newCounter).Operation("get", nil).Build,
			code:    ErrCodeBadParam,
			message: "operation get has no implementation",
		},
		{
			name:    "bad parameter",
			build:   NewSubject("c", newCounter).Operation("put", Run(get), Param("int", "5:1")).Build,
			code:    ErrCodeBadParam,
			message: "operation put",
		},
		{
			name:    "bad handled error",
			build:   NewSubject("c", newCounter).Operation("put", Run(get), Handles("", nil)).Build,
			code:    ErrCodeBadParam,
			message: "handled error needs a name and a target",
		},
		{
			name:    "empty group",
			build:   NewSubject("c", newCounter).Operation("get", Run(get)).NonParallelGroup("writers").Build,
			code:    ErrCodeUnsatisfiableGroup,
			message: `non-parallel group "writers" has no operations`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, s)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBuilder_CollectsEveryError(t *testing.T) {
	_, err := NewSubject("c", newCounter).
		Operation("", Run(get)).
		Operation("get", nil).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation without a name")
	assert.Contains(t, err.Error(), "operation get has no implementation")
	assert.True(t, IsConfigError(err))
}

func TestMustBuild_Panics(t *testing.T) {
	assert.Panics(t, func() {
		NewSubject("empty", newCounter).MustBuild()
	})
}

func TestRun_WrongSubjectType(t *testing.T) {
	run := Run(get)
	_, err := run(instr.Sequential(), "not a counter", nil)
	require.Error(t, err)
	assert.Equal(t, "subject is string, want *harness.counter", err.Error())

	v, err := run(instr.Sequential(), &counter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(0), v)
}

func TestHandlesFunc(t *testing.T) {
	errFull := errors.New("full")
	s := NewSubject("c", newCounter).
		Operation("put", Run(get), HandlesFunc("Full", func(err error) bool { return err.Error() == "full" })).
		MustBuild()

	op, _ := s.Operation("put")
	name, ok := op.HandledName(errFull)
	assert.True(t, ok)
	assert.Equal(t, "Full", name)
	_, ok = op.HandledName(errEmpty)
	assert.False(t, ok)
}
