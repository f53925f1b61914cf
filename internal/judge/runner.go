package judge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ehrlich-b/gavel/internal/logger"
	"github.com/ehrlich-b/gavel/internal/policy"
	"github.com/ehrlich-b/gavel/internal/sandbox"
)

// Case is one discovered input, identified by the stem of its .in file.
type Case struct {
	Name      string
	InputPath string
}

// CaseResult is the per-case verdict record written to the result artifact.
type CaseResult struct {
	TestName string `json:"test_name"`
	sandbox.Verdict
}

// ResultSet is the aggregate the result sink serializes.
type ResultSet struct {
	TestCases []CaseResult `json:"test_cases"`
}

// Runner drives one judging pass: stage, execute, harvest, append.
type Runner struct {
	Env    *sandbox.Env
	Policy *policy.Policy

	BinaryPath string // the compiled user program
	InputDir   string // holds <name>.in cases
	OutputDir  string // receives <name>.out captures
}

// EnumerateCases lists <name>.in files under dir, sorted by name. Exactly
// one verdict record is produced per entry returned here.
func EnumerateCases(dir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read case dir %s: %w", dir, err)
	}
	var cases []Case
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".in") {
			continue
		}
		cases = append(cases, Case{
			Name:      strings.TrimSuffix(ent.Name(), ".in"),
			InputPath: filepath.Join(dir, ent.Name()),
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// Run judges every discovered case and returns the aggregate. Staging
// failures are fatal (the sandbox is broken for every later case too);
// per-case execution failures land on the verdict and the pass continues.
func (r *Runner) Run() (*ResultSet, error) {
	cases, err := EnumerateCases(r.InputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	rs := &ResultSet{TestCases: []CaseResult{}}
	for _, c := range cases {
		if err := r.Env.StageCase(r.BinaryPath, c.InputPath); err != nil {
			return rs, fmt.Errorf("case %s: %w", c.Name, err)
		}

		v := r.Env.Execute(r.Policy)

		dest := filepath.Join(r.OutputDir, c.Name+".out")
		out, err := r.Env.HarvestOutput(dest)
		if err != nil {
			// The verdict stands; only the capture is missing.
			logger.Warn("harvest output", "case", c.Name, "err", err)
		}
		v.Output = string(out)

		logger.Info("case judged",
			"case", c.Name,
			"status", v.Status,
			"time_ms", v.TimeUsed,
			"memory_kb", v.MemoryUsed,
			"error", v.ErrorMessage)

		rs.TestCases = append(rs.TestCases, CaseResult{TestName: c.Name, Verdict: v})
	}
	return rs, nil
}
