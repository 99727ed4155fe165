package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/ir"
)

// ErrNotFound is returned when no archived check has the requested ID.
var ErrNotFound = errors.New("check not found")

// Check is an archived check run.
type Check struct {
	ID           string
	Subject      string
	Verifier     string
	Strategy     string
	Seed         uint64
	Iterations   int
	Runs         int
	Verified     int
	Faults       int
	Inconclusive int
	CacheHits    int64
	CacheMisses  int64
	Passed       bool
	Settings     Settings
	Host         Host

	// Failure is set for failed checks when loaded with LoadCheck.
	Failure *Failure
}

// Failure is an archived verification failure. The scenario is stored
// with operations referenced by name; bind it to a subject with Resolve.
type Failure struct {
	Iteration    int
	Run          int
	Minimized    bool
	ScenarioHash string
	ResultHash   string
	Scenario     ir.ScenarioRecord
	Result       ir.ExecutionResult
}

// SaveCheck archives a finished check together with the options it ran
// with. Uses ON CONFLICT(id) DO NOTHING for idempotency: saving the same
// report twice is a no-op.
func (s *Store) SaveCheck(ctx context.Context, rep *harness.Report, opts harness.Options, host Host) error {
	settingsJSON, err := marshalCanonical(SettingsOf(opts))
	if err != nil {
		return fmt.Errorf("save check: marshal settings: %w", err)
	}
	hostJSON, err := marshalCanonical(host)
	if err != nil {
		return fmt.Errorf("save check: marshal host: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save check: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checks
		(id, subject, verifier, strategy, seed, iterations, runs, verified, faults, inconclusive,
		 cache_hits, cache_misses, passed, options, host)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rep.RunID,
		rep.Subject,
		string(rep.Verifier),
		string(rep.Strategy),
		int64(rep.Seed),
		rep.Iterations,
		rep.Runs,
		rep.Verified,
		rep.Faults,
		rep.Inconclusive,
		rep.CacheHits,
		rep.CacheMisses,
		rep.Passed(),
		settingsJSON,
		hostJSON,
	)
	if err != nil {
		return fmt.Errorf("save check: %w", err)
	}

	if f := rep.Failure; f != nil {
		if err := insertFailure(ctx, tx, rep.RunID, f); err != nil {
			return fmt.Errorf("save check: %w", err)
		}
	}

	return tx.Commit()
}

func insertFailure(ctx context.Context, tx *sql.Tx, id string, f *harness.VerificationError) error {
	scenarioJSON, err := marshalScenario(f.Scenario)
	if err != nil {
		return err
	}
	resultJSON, err := marshalResult(f.Result)
	if err != nil {
		return err
	}
	scenarioHash, err := ir.ScenarioHash(f.Scenario)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO failures
		(check_id, iteration, run, minimized, scenario_hash, result_hash, scenario, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(check_id) DO NOTHING
	`,
		id,
		f.Iteration,
		f.Run,
		f.Minimized,
		scenarioHash,
		ir.ResultHash(f.Result),
		scenarioJSON,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("insert failure: %w", err)
	}
	return nil
}

// ListFilter narrows ListChecks.
type ListFilter struct {
	// Subject restricts the listing to one subject when set.
	Subject string

	// FailedOnly drops passed checks.
	FailedOnly bool

	// Limit caps the number of checks returned; zero means no limit.
	Limit int
}

// ListChecks returns archived checks, newest first. Failures are not
// loaded; use LoadCheck for the details.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListChecks(ctx context.Context, filter ListFilter) ([]Check, error) {
	query := `
		SELECT id, subject, verifier, strategy, seed, iterations, runs, verified, faults, inconclusive,
		       cache_hits, cache_misses, passed, options, host
		FROM checks
		WHERE (? = '' OR subject = ?)
		  AND (? = 0 OR passed = 0)
		ORDER BY id COLLATE BINARY DESC
	`
	args := []any{filter.Subject, filter.Subject, filter.FailedOnly}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	checks := []Check{}
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checks: %w", err)
	}
	return checks, nil
}

// LoadCheck returns the archived check with the given ID, including its
// failure. Returns ErrNotFound if there is none.
func (s *Store) LoadCheck(ctx context.Context, id string) (*Check, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, verifier, strategy, seed, iterations, runs, verified, faults, inconclusive,
		       cache_hits, cache_misses, passed, options, host
		FROM checks
		WHERE id = ?
	`, id)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load check %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load check %s: %w", id, err)
	}

	f, err := s.loadFailure(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load check %s: %w", id, err)
	}
	c.Failure = f
	return &c, nil
}

// FailuresOf returns the IDs of failed checks whose failing scenario hashes
// to scenarioHash, oldest first.
func (s *Store) FailuresOf(ctx context.Context, scenarioHash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT check_id FROM failures
		WHERE scenario_hash = ?
		ORDER BY check_id COLLATE BINARY ASC
	`, scenarioHash)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) loadFailure(ctx context.Context, id string) (*Failure, error) {
	var (
		f                        Failure
		scenarioJSON, resultJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT iteration, run, minimized, scenario_hash, result_hash, scenario, result
		FROM failures
		WHERE check_id = ?
	`, id).Scan(&f.Iteration, &f.Run, &f.Minimized, &f.ScenarioHash, &f.ResultHash, &scenarioJSON, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan failure: %w", err)
	}

	if f.Scenario, err = unmarshalScenario(scenarioJSON); err != nil {
		return nil, err
	}
	if f.Result, err = unmarshalResult(resultJSON); err != nil {
		return nil, err
	}
	return &f, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(row scanner) (Check, error) {
	var (
		c                      Check
		seed                   int64
		settingsJSON, hostJSON string
	)
	err := row.Scan(
		&c.ID, &c.Subject, &c.Verifier, &c.Strategy, &seed,
		&c.Iterations, &c.Runs, &c.Verified, &c.Faults, &c.Inconclusive,
		&c.CacheHits, &c.CacheMisses, &c.Passed, &settingsJSON, &hostJSON,
	)
	if err != nil {
		return Check{}, err
	}
	c.Seed = uint64(seed)
	if err := json.Unmarshal([]byte(settingsJSON), &c.Settings); err != nil {
		return Check{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := json.Unmarshal([]byte(hostJSON), &c.Host); err != nil {
		return Check{}, fmt.Errorf("unmarshal host: %w", err)
	}
	return c, nil
}

// Resolve binds the failure to subject's operations.
func (f *Failure) Resolve(subject *harness.Subject) (*ir.Scenario, *ir.ExecutionResult, error) {
	s, err := f.Scenario.Resolve(subject.Operation)
	if err != nil {
		return nil, nil, err
	}
	r := f.Result
	if !r.MatchesShape(s) {
		return nil, nil, fmt.Errorf("archived result does not match its scenario")
	}
	return s, &r, nil
}

// History converts the failure into a recorded history for offline
// verification.
func (c *Check) History(subject *harness.Subject) (*harness.History, error) {
	if c.Failure == nil {
		return nil, fmt.Errorf("check %s passed", c.ID)
	}
	s, r, err := c.Failure.Resolve(subject)
	if err != nil {
		return nil, err
	}
	h, err := harness.NewHistory(c.Subject, "", s, r)
	if err != nil {
		return nil, err
	}
	h.Verifier = c.Verifier
	h.Factor = c.Settings.Factor
	if c.Verifier == "quantitative" {
		h.PathCost = c.Settings.PathCost
	}
	return h, nil
}
