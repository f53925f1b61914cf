package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ehrlich-b/gavel/internal/judge"
	"github.com/ehrlich-b/gavel/internal/logger"
	"github.com/ehrlich-b/gavel/internal/policy"
	"github.com/ehrlich-b/gavel/internal/sandbox"
	"github.com/ehrlich-b/gavel/internal/store"
)

func main() {
	// Re-exec dispatch for the per-case child wrapper. This must run
	// before cobra ever sees argv: the wrapper has already forked and its
	// stdio is about to be redirected into the case output.
	if len(os.Args) > 1 && os.Args[1] == sandbox.CaseInitArg {
		sandbox.CaseInit(os.Args[2:])
		return
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type engineFlags struct {
	policyPath  string
	sandboxDir  string
	binaryPath  string
	caseDir     string
	outputDir   string
	resultPath  string
	historyPath string
	logLevel    string
	logFile     string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.policyPath, "policy", "limits.json", "policy file (json or yaml)")
	cmd.Flags().StringVar(&f.sandboxDir, "sandbox", "sandbox", "sandbox root directory")
	cmd.Flags().StringVar(&f.binaryPath, "binary", "./test", "compiled user program")
	cmd.Flags().StringVar(&f.caseDir, "cases", "stdin", "directory of <name>.in inputs")
	cmd.Flags().StringVar(&f.outputDir, "outputs", "stdout", "directory for captured <name>.out files")
	cmd.Flags().StringVar(&f.resultPath, "result", "execute_message.json", "result artifact path")
	cmd.Flags().StringVar(&f.historyPath, "history", "", "sqlite run-history database (optional)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "also log to this file")
}

func newRootCmd() *cobra.Command {
	var flags engineFlags

	root := &cobra.Command{
		Use:           "gavel",
		Short:         "gavel — sandboxed program judge",
		Long:          "Runs a compiled user program once per test case inside an isolated\nsandbox, enforces the configured resource policy, and writes one\nclassified verdict per case to the result artifact.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), &flags, false)
		},
	}
	flags.register(root)

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Judge once, then re-judge when case inputs change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), &flags, true)
		},
	}
	flags.register(watch)
	root.AddCommand(watch)

	return root
}

func runEngine(ctx context.Context, flags *engineFlags, watch bool) error {
	if err := logger.Init(flags.logLevel, flags.logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pol, err := policy.Load(flags.policyPath)
	if err != nil {
		return err
	}
	polRaw, _ := os.ReadFile(flags.policyPath)

	if pol.SeccompEnabled {
		if unknown := sandbox.CheckAllowlist(pol.Allowlist()); len(unknown) > 0 {
			logger.Warn("allow-list names unknown on this architecture", "names", unknown)
		}
	}

	env, err := sandbox.Prepare(flags.sandboxDir, pol.ChrootEnabled)
	if err != nil {
		return fmt.Errorf("prepare sandbox: %w", err)
	}
	defer env.Destroy()

	var hist *store.Store
	if flags.historyPath != "" {
		hist, err = store.Open(flags.historyPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hist.Close()
	}

	runner := &judge.Runner{
		Env:        env,
		Policy:     pol,
		BinaryPath: flags.binaryPath,
		InputDir:   flags.caseDir,
		OutputDir:  flags.outputDir,
	}

	session := uuid.NewString()
	logger.Info("engine ready",
		"session", session,
		"policy", flags.policyPath,
		"sandbox", env.Root(),
		"seccomp", pol.SeccompEnabled,
		"chroot", pol.ChrootEnabled)

	finish := func(started time.Time, rs *judge.ResultSet) error {
		if err := judge.WriteResults(flags.resultPath, rs); err != nil {
			return err
		}
		logger.Info("results written", "path", flags.resultPath, "cases", len(rs.TestCases))
		if hist != nil {
			run := &store.Run{
				ID:         uuid.NewString(),
				StartedAt:  started,
				FinishedAt: time.Now(),
				Policy:     string(polRaw),
			}
			if err := hist.RecordRun(run, rs); err != nil {
				logger.Warn("record history", "err", err)
			}
		}
		return nil
	}

	if watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		started := time.Now()
		err := runner.Watch(ctx, func(rs *judge.ResultSet) error {
			defer func() { started = time.Now() }()
			return finish(started, rs)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	started := time.Now()
	rs, err := runner.Run()
	if err != nil {
		return err
	}
	return finish(started, rs)
}
