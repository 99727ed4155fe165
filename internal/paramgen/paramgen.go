// Package paramgen produces argument values for generated invocations.
//
// Generators are configured by short strings, the same way operation
// parameters are declared in CUE option files:
//
//	int     "begin:end"          inclusive range, default -10:10
//	string  "maxLen[:alphabet]"  default 15 and [a-zA-Z0-9_ ]
//	bool    ""                   no configuration
//	enum    "a,b,c"              one of the listed strings
package paramgen

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/roach88/interleave/internal/ir"
)

// Generator produces one argument value per call. Implementations draw all
// randomness from r, so a seeded r makes generation reproducible.
type Generator interface {
	Generate(r *rand.Rand) ir.IRValue
}

const (
	DefaultIntBegin     = -10
	DefaultIntEnd       = 10
	DefaultStringMaxLen = 15
	DefaultAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_ "
)

// IntGen yields integers uniformly from [Begin, End].
type IntGen struct {
	Begin int64
	End   int64
}

// Generate implements Generator.
func (g IntGen) Generate(r *rand.Rand) ir.IRValue {
	return ir.IRInt(g.Begin + r.Int64N(g.End-g.Begin+1))
}

// StringGen yields strings of length [0, MaxLen] over Alphabet.
type StringGen struct {
	MaxLen   int
	Alphabet []rune
}

// Generate implements Generator.
func (g StringGen) Generate(r *rand.Rand) ir.IRValue {
	n := r.IntN(g.MaxLen + 1)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(g.Alphabet[r.IntN(len(g.Alphabet))])
	}
	return ir.IRString(b.String())
}

// BoolGen yields true or false with equal probability.
type BoolGen struct{}

// Generate implements Generator.
func (BoolGen) Generate(r *rand.Rand) ir.IRValue {
	return ir.IRBool(r.IntN(2) == 1)
}

// EnumGen yields one of a fixed set of values.
type EnumGen struct {
	Values []ir.IRValue
}

// Generate implements Generator.
func (g EnumGen) Generate(r *rand.Rand) ir.IRValue {
	return g.Values[r.IntN(len(g.Values))]
}

// ParseError reports a malformed generator configuration.
type ParseError struct {
	Kind   string
	Config string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s generator config %q: %s", e.Kind, e.Config, e.Reason)
}

// Parse builds a generator of the given kind from its configuration
// string. An empty config selects the defaults.
func Parse(kind, config string) (Generator, error) {
	switch kind {
	case "int":
		return ParseInt(config)
	case "string":
		return ParseString(config)
	case "bool":
		if config != "" {
			return nil, &ParseError{Kind: kind, Config: config, Reason: "bool takes no configuration"}
		}
		return BoolGen{}, nil
	case "enum":
		return ParseEnum(config)
	default:
		return nil, &ParseError{Kind: kind, Config: config, Reason: "unknown generator kind"}
	}
}

// ParseInt parses "begin:end".
func ParseInt(config string) (IntGen, error) {
	if config == "" {
		return IntGen{Begin: DefaultIntBegin, End: DefaultIntEnd}, nil
	}
	lo, hi, ok := strings.Cut(config, ":")
	if !ok {
		return IntGen{}, &ParseError{Kind: "int", Config: config, Reason: `expected "begin:end"`}
	}
	begin, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return IntGen{}, &ParseError{Kind: "int", Config: config, Reason: "begin is not an integer"}
	}
	end, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return IntGen{}, &ParseError{Kind: "int", Config: config, Reason: "end is not an integer"}
	}
	if begin > end {
		return IntGen{}, &ParseError{Kind: "int", Config: config, Reason: "begin is greater than end"}
	}
	return IntGen{Begin: begin, End: end}, nil
}

// ParseString parses "maxLen[:alphabet]".
func ParseString(config string) (StringGen, error) {
	g := StringGen{MaxLen: DefaultStringMaxLen, Alphabet: []rune(DefaultAlphabet)}
	if config == "" {
		return g, nil
	}
	n, alphabet, hasAlphabet := strings.Cut(config, ":")
	maxLen, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || maxLen < 0 {
		return StringGen{}, &ParseError{Kind: "string", Config: config, Reason: "maxLen must be a non-negative integer"}
	}
	g.MaxLen = maxLen
	if hasAlphabet {
		if alphabet == "" {
			return StringGen{}, &ParseError{Kind: "string", Config: config, Reason: "alphabet is empty"}
		}
		g.Alphabet = []rune(alphabet)
	}
	return g, nil
}

// ParseEnum parses a comma separated list of string values.
func ParseEnum(config string) (EnumGen, error) {
	var g EnumGen
	for _, v := range strings.Split(config, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		g.Values = append(g.Values, ir.IRString(v))
	}
	if len(g.Values) == 0 {
		return EnumGen{}, &ParseError{Kind: "enum", Config: config, Reason: "no values"}
	}
	return g, nil
}
