package ir

import (
	"encoding/json"
	"fmt"
)

// InvocationRecord is the serializable form of an Invocation: the
// operation is referenced by name.
type InvocationRecord struct {
	Op   string  `json:"op"`
	Args IRArray `json:"args"`
}

// ScenarioRecord is the serializable form of a Scenario.
type ScenarioRecord struct {
	Initial  []InvocationRecord   `json:"initial"`
	Parallel [][]InvocationRecord `json:"parallel"`
	Final    []InvocationRecord   `json:"final"`
}

// Record converts the scenario into its serializable form.
func (s *Scenario) Record() ScenarioRecord {
	conv := func(invs []Invocation) []InvocationRecord {
		out := make([]InvocationRecord, len(invs))
		for i, inv := range invs {
			args := IRArray(inv.Args)
			if args == nil {
				args = IRArray{}
			}
			out[i] = InvocationRecord{Op: inv.Name(), Args: args}
		}
		return out
	}
	rec := ScenarioRecord{
		Initial:  conv(s.Initial),
		Parallel: make([][]InvocationRecord, len(s.Parallel)),
		Final:    conv(s.Final),
	}
	for i, th := range s.Parallel {
		rec.Parallel[i] = conv(th)
	}
	return rec
}

// Resolve rebuilds a Scenario from its record, looking operations up by
// name. Unknown operation names are an error.
func (rec ScenarioRecord) Resolve(lookup func(name string) (*Operation, bool)) (*Scenario, error) {
	conv := func(part string, recs []InvocationRecord) ([]Invocation, error) {
		out := make([]Invocation, len(recs))
		for i, r := range recs {
			op, ok := lookup(r.Op)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: unknown operation %q", part, i, r.Op)
			}
			out[i] = Invocation{Op: op, Args: []IRValue(r.Args)}
		}
		return out, nil
	}

	s := &Scenario{Parallel: make([][]Invocation, len(rec.Parallel))}
	var err error
	if s.Initial, err = conv("initial", rec.Initial); err != nil {
		return nil, err
	}
	for i, th := range rec.Parallel {
		if s.Parallel[i], err = conv(fmt.Sprintf("parallel[%d]", i), th); err != nil {
			return nil, err
		}
	}
	if s.Final, err = conv("final", rec.Final); err != nil {
		return nil, err
	}
	return s, nil
}

type outcomeJSON struct {
	Kind  OutcomeKind     `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Kind: o.Kind, Error: o.Error}
	if out.Kind == "" {
		out.Kind = OutcomeVoid
	}
	if o.Kind == OutcomeValue {
		v, err := MarshalCanonical(o.Value)
		if err != nil {
			return nil, err
		}
		out.Value = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw outcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case OutcomeVoid, "":
		*o = VoidOutcome()
	case OutcomeError:
		*o = ErrorOutcome(raw.Error)
	case OutcomeValue:
		if len(raw.Value) == 0 {
			*o = ValueOutcome(IRNull{})
			return nil
		}
		v, err := UnmarshalIRValue(raw.Value)
		if err != nil {
			return fmt.Errorf("outcome value: %w", err)
		}
		*o = ValueOutcome(v)
	default:
		return fmt.Errorf("unknown outcome kind %q", raw.Kind)
	}
	return nil
}

// resultJSON fixes the field names of a serialized ExecutionResult.
type resultJSON struct {
	Initial  []Outcome   `json:"initial"`
	Parallel [][]Outcome `json:"parallel"`
	Final    []Outcome   `json:"final"`
}

// MarshalJSON implements json.Marshaler.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ExecutionResult) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ExecutionResult(raw)
	return nil
}
