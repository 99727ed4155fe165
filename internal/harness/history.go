package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/verifier"
)

// History is a recorded scenario together with the outcomes one run
// produced. History files let a failure be verified again offline, without
// running the subject.
type History struct {
	// Subject names the subject the history was recorded from.
	Subject string `yaml:"subject"`

	// Verifier is the correctness condition to check. Empty means
	// linearizability.
	Verifier string `yaml:"verifier,omitempty"`

	// Factor and PathCost parameterize relaxed verifiers.
	Factor   int    `yaml:"factor,omitempty"`
	PathCost string `yaml:"path_cost,omitempty"`

	Initial  []Step   `yaml:"initial,omitempty"`
	Parallel [][]Step `yaml:"parallel"`
	Final    []Step   `yaml:"final,omitempty"`
}

// Step is one invocation with its outcome. A step carries a result, an
// error, or neither (the operation returned nothing).
type Step struct {
	Op   string `yaml:"op"`
	Args []any  `yaml:"args,flow,omitempty"`

	// Result holds the returned value. A node is kept rather than a plain
	// value so that an explicit null result is told apart from void.
	Result yaml.Node `yaml:"result,omitempty"`

	// Error is the declared name of a handled error.
	Error string `yaml:"error,omitempty"`
}

// NewHistory records scenario s with the outcomes in r.
func NewHistory(subject string, kind verifier.Kind, s *ir.Scenario, r *ir.ExecutionResult) (*History, error) {
	if !r.MatchesShape(s) {
		return nil, fmt.Errorf("result does not match the scenario shape")
	}
	h := &History{Subject: subject, Verifier: string(kind), Parallel: make([][]Step, len(s.Parallel))}
	var err error
	if h.Initial, err = steps(s.Initial, r.Initial); err != nil {
		return nil, fmt.Errorf("initial: %w", err)
	}
	for t := range s.Parallel {
		if h.Parallel[t], err = steps(s.Parallel[t], r.Parallel[t]); err != nil {
			return nil, fmt.Errorf("parallel[%d]: %w", t, err)
		}
	}
	if h.Final, err = steps(s.Final, r.Final); err != nil {
		return nil, fmt.Errorf("final: %w", err)
	}
	return h, nil
}

// History records the failing scenario and result.
func (e *VerificationError) History() (*History, error) {
	return NewHistory(e.Subject, verifier.Kind(e.Verifier), e.Scenario, e.Result)
}

func steps(invs []ir.Invocation, outs []ir.Outcome) ([]Step, error) {
	out := make([]Step, len(invs))
	for i, inv := range invs {
		st := Step{Op: inv.Name()}
		for _, a := range inv.Args {
			st.Args = append(st.Args, ir.ToGo(a))
		}
		switch o := outs[i]; o.Kind {
		case ir.OutcomeValue:
			if err := st.Result.Encode(ir.ToGo(o.Value)); err != nil {
				return nil, fmt.Errorf("%s: %w", inv, err)
			}
		case ir.OutcomeError:
			st.Error = o.Error
		}
		out[i] = st
	}
	return out, nil
}

// LoadHistory reads and parses a history YAML file. Unknown fields are
// rejected.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return ParseHistory(data)
}

// ParseHistory parses a history document.
func ParseHistory(data []byte) (*History, error) {
	var h History
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateHistory(&h); err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	return &h, nil
}

// Marshal renders h as YAML.
func (h *History) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(h); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes h to path.
func (h *History) WriteFile(path string) error {
	data, err := h.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func validateHistory(h *History) error {
	if h.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if h.Verifier != "" {
		if _, err := verifier.ParseKind(h.Verifier); err != nil {
			return err
		}
	}
	if h.PathCost != "" {
		if _, err := verifier.ParsePathCostFunc(h.PathCost); err != nil {
			return err
		}
	}
	check := func(part string, steps []Step) error {
		for i, st := range steps {
			if st.Op == "" {
				return fmt.Errorf("%s[%d]: op is required", part, i)
			}
			if st.Error != "" && !st.Result.IsZero() {
				return fmt.Errorf("%s[%d]: result and error are exclusive", part, i)
			}
		}
		return nil
	}
	if err := check("initial", h.Initial); err != nil {
		return err
	}
	for t, th := range h.Parallel {
		if err := check(fmt.Sprintf("parallel[%d]", t), th); err != nil {
			return err
		}
	}
	return check("final", h.Final)
}

// Resolve binds the history to subject's operations.
func (h *History) Resolve(subject *Subject) (*ir.Scenario, *ir.ExecutionResult, error) {
	s := &ir.Scenario{Parallel: make([][]ir.Invocation, len(h.Parallel))}
	r := &ir.ExecutionResult{Parallel: make([][]ir.Outcome, len(h.Parallel))}
	var err error
	if s.Initial, r.Initial, err = resolve(subject, "initial", h.Initial); err != nil {
		return nil, nil, err
	}
	for t, th := range h.Parallel {
		if s.Parallel[t], r.Parallel[t], err = resolve(subject, fmt.Sprintf("parallel[%d]", t), th); err != nil {
			return nil, nil, err
		}
	}
	if s.Final, r.Final, err = resolve(subject, "final", h.Final); err != nil {
		return nil, nil, err
	}
	return s, r, nil
}

func resolve(subject *Subject, part string, steps []Step) ([]ir.Invocation, []ir.Outcome, error) {
	invs := make([]ir.Invocation, len(steps))
	outs := make([]ir.Outcome, len(steps))
	for i, st := range steps {
		op, ok := subject.Operation(st.Op)
		if !ok {
			return nil, nil, fmt.Errorf("%s[%d]: unknown operation %q", part, i, st.Op)
		}
		args := make([]ir.IRValue, len(st.Args))
		for j, a := range st.Args {
			v, err := ir.FromGo(a)
			if err != nil {
				return nil, nil, fmt.Errorf("%s[%d]: argument %d: %w", part, i, j, err)
			}
			args[j] = v
		}
		invs[i] = ir.Invocation{Op: op, Args: args}

		switch {
		case st.Error != "":
			outs[i] = ir.ErrorOutcome(st.Error)
		case !st.Result.IsZero():
			var raw any
			if err := st.Result.Decode(&raw); err != nil {
				return nil, nil, fmt.Errorf("%s[%d]: result: %w", part, i, err)
			}
			v, err := ir.FromGo(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("%s[%d]: result: %w", part, i, err)
			}
			outs[i] = ir.ValueOutcome(v)
		default:
			outs[i] = ir.VoidOutcome()
		}
	}
	return invs, outs, nil
}

// VerifyHistory checks a recorded history against subject's reference
// model. The verifier named in the history wins over the one in opts.
func VerifyHistory(subject *Subject, h *History, opts ...Option) (bool, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if h.Verifier != "" {
		o.Verifier = verifier.Kind(h.Verifier)
	}
	if h.Factor != 0 {
		o.Factor = h.Factor
	}
	if h.PathCost != "" {
		fn, err := verifier.ParsePathCostFunc(h.PathCost)
		if err != nil {
			return false, &ConfigError{Code: ErrCodeBadOptions, Message: "invalid history", Cause: err}
		}
		o.PathCost = fn
	}

	s, r, err := h.Resolve(subject)
	if err != nil {
		return false, &ConfigError{Code: ErrCodeBadParam, Message: "history does not match subject " + subject.Name, Cause: err}
	}
	v, err := verifier.New(verifier.Config{
		Kind:        o.Verifier,
		Model:       subject.model(),
		Factor:      o.Factor,
		PathCost:    o.PathCost,
		CostCounter: subject.CostCounter,
		NoCache:     true,
	})
	if err != nil {
		return false, &ConfigError{Code: ErrCodeBadOptions, Message: "cannot build verifier", Cause: err}
	}
	return v.Verify(s, r)
}
