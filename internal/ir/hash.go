package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows migrating the hashing scheme later.
const (
	DomainScenario = "interleave/scenario/v1"
	DomainResult   = "interleave/result/v1"
	DomainState    = "interleave/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ScenarioHash computes a content hash of a scenario. Two scenarios with
// the same operations and arguments in the same positions hash equally.
func ScenarioHash(s *Scenario) (string, error) {
	data, err := json.Marshal(s.Record())
	if err != nil {
		return "", fmt.Errorf("ScenarioHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScenario, data), nil
}

// ResultHash computes a content hash of an execution result.
func ResultHash(r *ExecutionResult) string {
	return hashWithDomain(DomainResult, []byte(r.Key()))
}

// StateHash condenses a reference-state fingerprint into a fixed-size key.
func StateHash(fingerprint string) string {
	return hashWithDomain(DomainState, []byte(fingerprint))
}

// MustScenarioHash is like ScenarioHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustScenarioHash(s *Scenario) string {
	h, err := ScenarioHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
