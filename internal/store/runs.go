package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ehrlich-b/gavel/internal/judge"
)

const timeFmt = "2006-01-02T15:04:05Z"

// Run is one completed judging pass.
type Run struct {
	ID         string // run uuid, fresh for every pass
	StartedAt  time.Time
	FinishedAt time.Time
	Policy     string // policy file contents as loaded
	Cases      int
}

// RecordRun inserts the run row and one verdict row per case in a single
// transaction.
func (s *Store) RecordRun(run *Run, rs *judge.ResultSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	run.Cases = len(rs.TestCases)
	if _, err := tx.Exec(`INSERT INTO runs (id, started_at, finished_at, policy, cases)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeFmt), run.FinishedAt.UTC().Format(timeFmt),
		run.Policy, run.Cases); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, tc := range rs.TestCases {
		if _, err := tx.Exec(`INSERT INTO verdicts (run_id, test_name, status, time_used, memory_used,
			error_message, output, time_limit_exceeded, memory_limit_exceeded, runtime_error, system_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, tc.TestName, tc.Status, tc.TimeUsed, tc.MemoryUsed,
			tc.ErrorMessage, tc.Output,
			boolInt(tc.TimeLimitExceeded), boolInt(tc.MemoryLimitExceeded),
			boolInt(tc.RuntimeError), boolInt(tc.SystemError)); err != nil {
			return fmt.Errorf("insert verdict %s: %w", tc.TestName, err)
		}
	}
	return tx.Commit()
}

// GetRun loads one run by id, or nil if absent.
func (s *Store) GetRun(id string) (*Run, error) {
	r := &Run{}
	var started, finished string
	err := s.db.QueryRow(`SELECT id, started_at, finished_at, policy, cases FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &started, &finished, &r.Policy, &r.Cases)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.StartedAt, _ = time.Parse(timeFmt, started)
	r.FinishedAt, _ = time.Parse(timeFmt, finished)
	return r, nil
}

// ListVerdicts returns the stored verdicts of a run, ordered by test name.
func (s *Store) ListVerdicts(runID string) ([]judge.CaseResult, error) {
	rows, err := s.db.Query(`SELECT test_name, status, time_used, memory_used, error_message, output,
		time_limit_exceeded, memory_limit_exceeded, runtime_error, system_error
		FROM verdicts WHERE run_id = ? ORDER BY test_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var out []judge.CaseResult
	for rows.Next() {
		var tc judge.CaseResult
		var tle, mle, rte, sys int
		if err := rows.Scan(&tc.TestName, &tc.Status, &tc.TimeUsed, &tc.MemoryUsed,
			&tc.ErrorMessage, &tc.Output, &tle, &mle, &rte, &sys); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		tc.TimeLimitExceeded = tle != 0
		tc.MemoryLimitExceeded = mle != 0
		tc.RuntimeError = rte != 0
		tc.SystemError = sys != 0
		out = append(out, tc)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
