package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/ir"
)

// marshalScenario converts a scenario to JSON TEXT for storage. Operations
// are stored by name.
func marshalScenario(s *ir.Scenario) (string, error) {
	data, err := json.Marshal(s.Record())
	if err != nil {
		return "", fmt.Errorf("marshal scenario: %w", err)
	}
	return string(data), nil
}

// unmarshalScenario parses JSON TEXT to a scenario record.
func unmarshalScenario(data string) (ir.ScenarioRecord, error) {
	var rec ir.ScenarioRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return ir.ScenarioRecord{}, fmt.Errorf("unmarshal scenario: %w", err)
	}
	return rec, nil
}

// marshalResult converts an execution result to JSON TEXT for storage.
func marshalResult(r *ir.ExecutionResult) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalResult parses JSON TEXT to an execution result.
func unmarshalResult(data string) (ir.ExecutionResult, error) {
	var r ir.ExecutionResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return r, nil
}

// Settings is the stored form of the check options that shape a run.
// Injected dependencies (logger, observer) are not stored.
type Settings struct {
	Iterations              int    `json:"iterations"`
	InvocationsPerIteration int    `json:"invocations_per_iteration"`
	Threads                 int    `json:"threads"`
	ActorsPerThread         int    `json:"actors_per_thread"`
	ActorsBefore            int    `json:"actors_before"`
	ActorsAfter             int    `json:"actors_after"`
	Strategy                string `json:"strategy"`
	StressCeiling           int    `json:"stress_ceiling"`
	SwitchProbabilityPct    int    `json:"switch_probability_pct"`
	MaxCalls                int    `json:"max_calls"`
	Verifier                string `json:"verifier"`
	Factor                  int    `json:"factor"`
	PathCost                string `json:"path_cost"`
	Seed                    uint64 `json:"seed"`
	RunTimeoutMillis        int64  `json:"run_timeout_ms"`
	Minimize                bool   `json:"minimize"`
}

// SettingsOf extracts the stored settings from o.
func SettingsOf(o harness.Options) Settings {
	return Settings{
		Iterations:              o.Iterations,
		InvocationsPerIteration: o.InvocationsPerIteration,
		Threads:                 o.Threads,
		ActorsPerThread:         o.ActorsPerThread,
		ActorsBefore:            o.ActorsBefore,
		ActorsAfter:             o.ActorsAfter,
		Strategy:                string(o.Strategy),
		StressCeiling:           o.StressCeiling,
		SwitchProbabilityPct:    int(o.SwitchProbability*100 + 0.5),
		MaxCalls:                o.MaxCalls,
		Verifier:                string(o.Verifier),
		Factor:                  o.Factor,
		PathCost:                o.PathCost.String(),
		Seed:                    o.Seed,
		RunTimeoutMillis:        o.RunTimeout.Milliseconds(),
		Minimize:                o.Minimize,
	}
}

// marshalCanonical converts a JSON-tagged struct to RFC 8785 canonical
// JSON, so that identical settings are stored byte-identically.
func marshalCanonical(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return "", err
	}
	val, err := ir.FromGo(raw)
	if err != nil {
		return "", err
	}
	canon, err := ir.MarshalCanonical(val)
	if err != nil {
		return "", err
	}
	return string(canon), nil
}
