package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/token"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/verifier"
)

//go:embed schema.cue
var schemaSource string

// Error codes returned in LoadError.
const (
	ErrCodeNotFound     = "E201" // File missing or unreadable
	ErrCodeSyntax       = "E202" // CUE does not parse
	ErrCodeSchema       = "E203" // Value violates the options schema
	ErrCodeUnknownField = "E204" // Field the schema does not define
	ErrCodeInvalidValue = "E205" // Value parses but is unusable
)

// LoadError is a configuration error, positioned in the CUE source when
// the position is known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// File is the decoded form of a configuration file.
type File struct {
	Iterations              *int     `json:"iterations,omitempty"`
	InvocationsPerIteration *int     `json:"invocations_per_iteration,omitempty"`
	Threads                 *int     `json:"threads,omitempty"`
	Actors                  *Actors  `json:"actors,omitempty"`
	Strategy                *string  `json:"strategy,omitempty"`
	StressCeiling           *int     `json:"stress_ceiling,omitempty"`
	SwitchProbability       *float64 `json:"switch_probability,omitempty"`
	MaxCalls                *int     `json:"max_calls,omitempty"`
	Verifier                *string  `json:"verifier,omitempty"`
	Factor                  *int     `json:"factor,omitempty"`
	PathCost                *string  `json:"path_cost,omitempty"`
	Seed                    *uint64  `json:"seed,omitempty"`
	RunTimeout              *string  `json:"run_timeout,omitempty"`
	Minimize                *bool    `json:"minimize,omitempty"`
}

// Actors is the scenario shape section of a configuration file.
type Actors struct {
	PerThread *int `json:"per_thread,omitempty"`
	Before    *int `json:"before,omitempty"`
	After     *int `json:"after,omitempty"`
}

// Load reads the configuration file at path and returns the default
// options overridden by the fields it sets.
func Load(path string) (harness.Options, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return harness.Options{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}
	}
	return LoadBytes(path, src)
}

// ParseFile reads and parses the configuration file at path without
// applying it.
func ParseFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}
	}
	return Parse(path, src)
}

// LoadBytes is Load for an in-memory source. filename is used in error
// positions only.
func LoadBytes(filename string, src []byte) (harness.Options, error) {
	f, err := Parse(filename, src)
	if err != nil {
		return harness.Options{}, err
	}
	opts := harness.DefaultOptions()
	if err := f.Apply(&opts); err != nil {
		return harness.Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return harness.Options{}, &LoadError{Code: ErrCodeInvalidValue, Message: err.Error()}
	}
	return opts, nil
}

// Parse compiles src, checks it against the options schema and decodes it.
func Parse(filename string, src []byte) (*File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling options schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Options"))

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, convertCUEError(ErrCodeSyntax, err)
	}

	if err := checkFields(def, value, ""); err != nil {
		return nil, err
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEError(ErrCodeSchema, err)
	}

	var f File
	if err := unified.Decode(&f); err != nil {
		return nil, convertCUEError(ErrCodeSchema, err)
	}
	return &f, nil
}

// checkFields rejects fields that def does not declare, so a misspelled
// option fails loudly instead of being ignored.
func checkFields(def, v cue.Value, prefix string) error {
	if v.IncompleteKind() != cue.StructKind {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return convertCUEError(ErrCodeSchema, err)
	}
	for iter.Next() {
		sel := iter.Selector()
		if !def.Allows(sel) {
			return &LoadError{
				Code:    ErrCodeUnknownField,
				Message: fmt.Sprintf("unknown field %q", prefix+iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
		child := def.LookupPath(cue.MakePath(sel.Optional()))
		if !child.Exists() {
			continue
		}
		if err := checkFields(child, iter.Value(), prefix+iter.Label()+"."); err != nil {
			return err
		}
	}
	return nil
}

// Apply overrides the fields of o that f sets.
func (f *File) Apply(o *harness.Options) error {
	setInt(&o.Iterations, f.Iterations)
	setInt(&o.InvocationsPerIteration, f.InvocationsPerIteration)
	setInt(&o.Threads, f.Threads)
	if a := f.Actors; a != nil {
		setInt(&o.ActorsPerThread, a.PerThread)
		setInt(&o.ActorsBefore, a.Before)
		setInt(&o.ActorsAfter, a.After)
	}
	if f.Strategy != nil {
		o.Strategy = harness.StrategyKind(*f.Strategy)
	}
	setInt(&o.StressCeiling, f.StressCeiling)
	if f.SwitchProbability != nil {
		o.SwitchProbability = *f.SwitchProbability
	}
	setInt(&o.MaxCalls, f.MaxCalls)
	if f.Verifier != nil {
		k, err := verifier.ParseKind(*f.Verifier)
		if err != nil {
			return &LoadError{Code: ErrCodeInvalidValue, Message: err.Error()}
		}
		o.Verifier = k
	}
	setInt(&o.Factor, f.Factor)
	if f.PathCost != nil {
		fn, err := verifier.ParsePathCostFunc(*f.PathCost)
		if err != nil {
			return &LoadError{Code: ErrCodeInvalidValue, Message: err.Error()}
		}
		o.PathCost = fn
	}
	if f.Seed != nil {
		o.Seed = *f.Seed
	}
	if f.RunTimeout != nil {
		d, err := time.ParseDuration(*f.RunTimeout)
		if err != nil {
			return &LoadError{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("run_timeout: %v", err)}
		}
		o.RunTimeout = d
	}
	if f.Minimize != nil {
		o.Minimize = *f.Minimize
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// FileOf captures the serializable fields of o. Factor and path cost are
// written only when a relaxation factor is set.
func FileOf(o harness.Options) *File {
	f := &File{
		Iterations:              ptr(o.Iterations),
		InvocationsPerIteration: ptr(o.InvocationsPerIteration),
		Threads:                 ptr(o.Threads),
		Actors: &Actors{
			PerThread: ptr(o.ActorsPerThread),
			Before:    ptr(o.ActorsBefore),
			After:     ptr(o.ActorsAfter),
		},
		Strategy:          ptr(string(o.Strategy)),
		StressCeiling:     ptr(o.StressCeiling),
		SwitchProbability: ptr(o.SwitchProbability),
		MaxCalls:          ptr(o.MaxCalls),
		Verifier:          ptr(string(o.Verifier)),
		Seed:              ptr(o.Seed),
		RunTimeout:        ptr(o.RunTimeout.String()),
		Minimize:          ptr(o.Minimize),
	}
	if o.Factor > 0 {
		f.Factor = ptr(o.Factor)
		f.PathCost = ptr(o.PathCost.String())
	}
	return f
}

func ptr[T any](v T) *T {
	return &v
}

// Format renders o as a CUE configuration file that Load reads back to the
// same options.
func Format(o harness.Options) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.Encode(FileOf(o))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}
	out, err := format.Node(v.Syntax(cue.Final(), cue.Concrete(true)))
	if err != nil {
		return nil, fmt.Errorf("formatting options: %w", err)
	}
	return out, nil
}

// convertCUEError turns the first CUE error into a positioned LoadError.
func convertCUEError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
