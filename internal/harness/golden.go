package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/interleave/internal/ir"
)

// AssertGoldenFailure renders a failing scenario and result and compares
// the text against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGoldenFailure(t *testing.T, name string, s *ir.Scenario, r *ir.ExecutionResult) {
	t.Helper()

	var b strings.Builder
	if err := RenderFailure(&b, s, r); err != nil {
		t.Fatalf("render failure: %v", err)
	}
	golden(t).Assert(t, name, []byte(b.String()))
}

// AssertGoldenReport compares the rendered report against
// testdata/golden/{name}.golden. Reports should come from a check with a
// fixed run ID generator, so the output is byte-identical across runs.
func AssertGoldenReport(t *testing.T, name string, rep *Report) {
	t.Helper()

	var b strings.Builder
	if err := RenderReport(&b, rep); err != nil {
		t.Fatalf("render report: %v", err)
	}
	golden(t).Assert(t, name, []byte(b.String()))
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
