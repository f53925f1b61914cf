package store

import (
	"testing"
	"time"

	"github.com/ehrlich-b/gavel/internal/judge"
	"github.com/ehrlich-b/gavel/internal/sandbox"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	rs := &judge.ResultSet{TestCases: []judge.CaseResult{
		{
			TestName: "1",
			Verdict: sandbox.Verdict{
				Status: 0, TimeUsed: 12, MemoryUsed: 800, Output: "hello\n",
			},
		},
		{
			TestName: "2",
			Verdict: sandbox.Verdict{
				Status: 11, TimeUsed: 5, MemoryUsed: 700,
				ErrorMessage: "segmentation fault", RuntimeError: true,
			},
		},
	}}

	run := &Run{
		ID:         "r-test-001",
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Policy:     `{"time_limit":1000}`,
	}
	if err := s.RecordRun(run, rs); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.GetRun("r-test-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil run")
	}
	if got.Cases != 2 {
		t.Errorf("cases = %d, want 2", got.Cases)
	}
	if !got.StartedAt.Equal(now) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, now)
	}
	if got.Policy != `{"time_limit":1000}` {
		t.Errorf("policy = %q", got.Policy)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetRun("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil", got)
	}
}

func TestListVerdictsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rs := &judge.ResultSet{TestCases: []judge.CaseResult{
		{
			TestName: "b",
			Verdict: sandbox.Verdict{
				Status: 24, TimeUsed: 1200, MemoryUsed: 900,
				ErrorMessage: "time limit exceeded", TimeLimitExceeded: true,
			},
		},
		{
			TestName: "a",
			Verdict: sandbox.Verdict{
				Status: 0, TimeUsed: 3, MemoryUsed: 512, Output: "ok\n",
			},
		},
	}}
	run := &Run{ID: "r-1", StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := s.RecordRun(run, rs); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.ListVerdicts("r-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d verdicts, want 2", len(got))
	}
	// Ordered by test name.
	if got[0].TestName != "a" || got[1].TestName != "b" {
		t.Errorf("order = %q, %q", got[0].TestName, got[1].TestName)
	}
	if !got[1].TimeLimitExceeded || got[1].Status != 24 {
		t.Errorf("verdict b = %+v", got[1])
	}
	if got[0].Output != "ok\n" {
		t.Errorf("verdict a output = %q", got[0].Output)
	}
}

func TestDuplicateRunRejected(t *testing.T) {
	s := openTestStore(t)
	run := &Run{ID: "dup", StartedAt: time.Now(), FinishedAt: time.Now()}
	empty := &judge.ResultSet{}
	if err := s.RecordRun(run, empty); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := s.RecordRun(run, empty); err == nil {
		t.Fatal("duplicate run id must be rejected")
	}
}
