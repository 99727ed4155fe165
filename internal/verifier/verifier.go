package verifier

import (
	"fmt"
	"slices"

	"github.com/roach88/interleave/internal/ir"
)

// Verifier decides whether a result is explainable for its scenario.
//
// Verify returns false when no legal order reproduces the result. It
// returns an error only when verification itself could not be carried out:
// a result of the wrong shape, or a failing reference model.
type Verifier interface {
	Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error)
}

// Kind names a correctness condition.
type Kind string

const (
	KindLinearizability        Kind = "linearizability"
	KindSerializability        Kind = "serializability"
	KindQuiescentConsistency   Kind = "quiescent"
	KindQuantitativeRelaxation Kind = "quantitative"
	KindQuasiLinearizability   Kind = "quasi"
	KindEpsilon                Kind = "epsilon"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{
		KindLinearizability,
		KindSerializability,
		KindQuiescentConsistency,
		KindQuantitativeRelaxation,
		KindQuasiLinearizability,
		KindEpsilon,
	}
}

// ParseKind validates a verifier name.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if !slices.Contains(Kinds(), k) {
		return "", fmt.Errorf("unknown verifier %q", name)
	}
	return k, nil
}

// Config selects and parameterizes a verifier.
type Config struct {
	Kind Kind

	// Model creates sequential reference instances. Required by every kind
	// except quantitative and epsilon.
	Model ModelFactory

	// Factor is the relaxation factor for quantitative and quasi.
	Factor int

	// PathCost and CostCounter configure quantitative relaxation.
	PathCost    PathCostFunc
	CostCounter CostCounterFactory

	// NoCache disables verdict memoization.
	NoCache bool
}

// New builds the verifier described by cfg. Unless cfg.NoCache is set,
// the result is wrapped in Cached; Epsilon is never wrapped.
func New(cfg Config) (Verifier, error) {
	var (
		v   Verifier
		err error
	)
	needModel := func() error {
		if cfg.Model == nil {
			return fmt.Errorf("verifier %s requires a reference model", cfg.Kind)
		}
		return nil
	}

	switch cfg.Kind {
	case KindLinearizability, "":
		if err = needModel(); err == nil {
			v = NewLinearizability(cfg.Model)
		}
	case KindSerializability:
		if err = needModel(); err == nil {
			v = NewSerializability(cfg.Model)
		}
	case KindQuiescentConsistency:
		if err = needModel(); err == nil {
			v = NewQuiescentConsistency(cfg.Model)
		}
	case KindQuasiLinearizability:
		if err = needModel(); err == nil {
			v, err = NewQuasiLinearizability(cfg.Model, cfg.Factor)
		}
	case KindQuantitativeRelaxation:
		v, err = NewQuantitativeRelaxation(cfg.CostCounter, cfg.PathCost, cfg.Factor)
	case KindEpsilon:
		return Epsilon{}, nil
	default:
		return nil, fmt.Errorf("unknown verifier %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.NoCache {
		return v, nil
	}
	return NewCached(v), nil
}
