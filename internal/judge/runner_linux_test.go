//go:build linux

package judge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/gavel/internal/policy"
	"github.com/ehrlich-b/gavel/internal/sandbox"
)

// TestMain makes the test binary a valid re-exec target for the child
// wrapper, the same hook cmd/gavel/main.go provides in production.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == sandbox.CaseInitArg {
		sandbox.CaseInit(os.Args[2:])
		return
	}
	os.Exit(m.Run())
}

func TestRunnerFullPass(t *testing.T) {
	work := t.TempDir()

	env, err := sandbox.Prepare(filepath.Join(work, "sandbox"), false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	t.Cleanup(env.Destroy)

	inputDir := filepath.Join(work, "stdin")
	if err := os.Mkdir(inputDir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"1.in": "first\n",
		"2.in": "second\n",
	} {
		if err := os.WriteFile(filepath.Join(inputDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	bin := filepath.Join(work, "solution")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\ncat\n"), 0755); err != nil {
		t.Fatal(err)
	}

	r := &Runner{
		Env: env,
		Policy: &policy.Policy{
			TimeLimit:    5000,
			MemoryLimit:  1 << 20,
			OutputLimit:  1 << 20,
			ProcessLimit: 4096,
			StackLimit:   8192,
		},
		BinaryPath: bin,
		InputDir:   inputDir,
		OutputDir:  filepath.Join(work, "stdout"),
	}

	rs, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rs.TestCases) != 2 {
		t.Fatalf("got %d records, want one per input", len(rs.TestCases))
	}

	wantOutput := map[string]string{"1": "first\n", "2": "second\n"}
	for _, tc := range rs.TestCases {
		want, ok := wantOutput[tc.TestName]
		if !ok {
			t.Errorf("unexpected record %q", tc.TestName)
			continue
		}
		if tc.SystemError {
			t.Errorf("case %s: system error: %s", tc.TestName, tc.ErrorMessage)
			continue
		}
		if tc.Status != 0 || tc.RuntimeError {
			t.Errorf("case %s: status=%d rte=%v msg=%q", tc.TestName, tc.Status, tc.RuntimeError, tc.ErrorMessage)
		}
		if tc.Output != want {
			t.Errorf("case %s: output = %q, want %q", tc.TestName, tc.Output, want)
		}

		captured, err := os.ReadFile(filepath.Join(r.OutputDir, tc.TestName+".out"))
		if err != nil {
			t.Errorf("case %s: harvested file: %v", tc.TestName, err)
		} else if string(captured) != want {
			t.Errorf("case %s: harvested = %q, want %q", tc.TestName, captured, want)
		}
	}
}

func TestRunnerContinuesAfterBadCase(t *testing.T) {
	work := t.TempDir()

	env, err := sandbox.Prepare(filepath.Join(work, "sandbox"), false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	t.Cleanup(env.Destroy)

	inputDir := filepath.Join(work, "stdin")
	os.Mkdir(inputDir, 0755)
	os.WriteFile(filepath.Join(inputDir, "a.in"), []byte("x\n"), 0644)
	os.WriteFile(filepath.Join(inputDir, "b.in"), []byte("y\n"), 0644)

	// Exits nonzero on the first line "x", succeeds otherwise.
	bin := filepath.Join(work, "solution")
	script := "#!/bin/sh\nread line\nif [ \"$line\" = x ]; then exit 3; fi\necho ok\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	r := &Runner{
		Env: env,
		Policy: &policy.Policy{
			TimeLimit: 5000, MemoryLimit: 1 << 20, OutputLimit: 1 << 20,
			ProcessLimit: 4096, StackLimit: 8192,
		},
		BinaryPath: bin,
		InputDir:   inputDir,
		OutputDir:  filepath.Join(work, "stdout"),
	}

	rs, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rs.TestCases) != 2 {
		t.Fatalf("got %d records, want 2", len(rs.TestCases))
	}
	if !rs.TestCases[0].RuntimeError || rs.TestCases[0].Status != 3 {
		t.Errorf("case a = %+v, want runtime error exit 3", rs.TestCases[0])
	}
	if rs.TestCases[1].RuntimeError || rs.TestCases[1].Output != "ok\n" {
		t.Errorf("case b = %+v, want clean ok", rs.TestCases[1])
	}
}
