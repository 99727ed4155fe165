package harness

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/roach88/interleave/internal/ir"
)

// RenderScenario writes s as a table: the initial part, the parallel part
// with one column per thread, and the final part. Empty parts are omitted.
func RenderScenario(w io.Writer, s *ir.Scenario) error {
	return render(w, s, nil)
}

// RenderFailure writes s with the outcome of every invocation in r next to
// it, under an "Invalid execution results" banner.
func RenderFailure(w io.Writer, s *ir.Scenario, r *ir.ExecutionResult) error {
	if _, err := io.WriteString(w, "= Invalid execution results =\n"); err != nil {
		return err
	}
	return render(w, s, r)
}

// RenderReport writes a one-screen summary of rep, followed by the reason
// the check did not pass and any failure details.
func RenderReport(w io.Writer, rep *Report) error {
	status := "PASSED"
	if !rep.Passed() {
		status = "FAILED"
	}
	rows := [][]string{
		{"run", rep.RunID},
		{"subject", rep.Subject},
		{"verifier", string(rep.Verifier)},
		{"strategy", string(rep.Strategy)},
		{"seed", fmt.Sprint(rep.Seed)},
		{"iterations", fmt.Sprint(rep.Iterations)},
		{"runs", fmt.Sprint(rep.Runs)},
		{"verified", fmt.Sprint(rep.Verified)},
		{"faults", fmt.Sprint(rep.Faults)},
		{"inconclusive", fmt.Sprint(rep.Inconclusive)},
		{"cache", fmt.Sprintf("%d hits, %d misses", rep.CacheHits, rep.CacheMisses)},
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", rep.Subject, status)
	writeColumns(&b, nil, rows)
	if rep.Failure == nil && !rep.Passed() {
		fmt.Fprintf(&b, "\n%s\n", rep.Reason())
	}
	if rep.Failure != nil {
		fmt.Fprintf(&b, "\n%s\n", rep.Failure.Error())
		if rep.Failure.Minimized {
			b.WriteString("(scenario minimized)\n")
		}
		if err := RenderFailure(&b, rep.Failure.Scenario, rep.Failure.Result); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func render(w io.Writer, s *ir.Scenario, r *ir.ExecutionResult) error {
	if r != nil && !r.MatchesShape(s) {
		return fmt.Errorf("result does not match the scenario shape")
	}
	var res ir.ExecutionResult
	if r != nil {
		res = *r
	}

	var b strings.Builder
	if len(s.Initial) > 0 {
		b.WriteString("Init part:\n")
		writeColumns(&b, nil, column(cells(s.Initial, res.Initial)))
	}
	if s.Size() > len(s.Initial)+len(s.Final) {
		b.WriteString("Parallel part:\n")
		header := make([]string, len(s.Parallel))
		cols := make([][]string, len(s.Parallel))
		for t, th := range s.Parallel {
			header[t] = fmt.Sprintf("Thread %d", t+1)
			var outs []ir.Outcome
			if r != nil {
				outs = res.Parallel[t]
			}
			cols[t] = cells(th, outs)
		}
		writeColumns(&b, header, transpose(cols))
	}
	if len(s.Final) > 0 {
		b.WriteString("Post part:\n")
		writeColumns(&b, nil, column(cells(s.Final, res.Final)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// cells renders invocations, with their outcomes when outs is not nil.
func cells(invs []ir.Invocation, outs []ir.Outcome) []string {
	out := make([]string, len(invs))
	for i, inv := range invs {
		out[i] = inv.String()
		if outs != nil {
			out[i] += ": " + outs[i].String()
		}
	}
	return out
}

func column(cells []string) [][]string {
	rows := make([][]string, len(cells))
	for i, c := range cells {
		rows[i] = []string{c}
	}
	return rows
}

// transpose turns columns of unequal length into rows, padding with
// empty cells.
func transpose(cols [][]string) [][]string {
	height := 0
	for _, c := range cols {
		height = max(height, len(c))
	}
	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, len(cols))
		for j, c := range cols {
			if i < len(c) {
				rows[i][j] = c[i]
			}
		}
	}
	return rows
}

// writeColumns writes rows as "| a | b |" lines with every column padded
// to its widest cell.
func writeColumns(b *strings.Builder, header []string, rows [][]string) {
	var widths []int
	measure := func(row []string) {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	line := func(row []string) {
		b.WriteByte('|')
		for i, w := range widths {
			c := ""
			if i < len(row) {
				c = row[i]
			}
			b.WriteByte(' ')
			b.WriteString(c)
			b.WriteString(strings.Repeat(" ", w-utf8.RuneCountInString(c)))
			b.WriteString(" |")
		}
		b.WriteByte('\n')
	}
	if header != nil {
		line(header)
		b.WriteByte('|')
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteByte('|')
		}
		b.WriteByte('\n')
	}
	for _, row := range rows {
		line(row)
	}
}
