//go:build linux

package sandbox

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/gavel/internal/logger"
	"github.com/ehrlich-b/gavel/internal/policy"
)

// Execute runs the staged case under pol and classifies the outcome. Per
// spec, supervisor failures (pipe, fork, wait) are captured on the verdict
// as system errors rather than returned; the run continues.
//
// Go cannot run code between fork and exec in the parent image, so the
// ordered child setup (redirect, rlimits, seccomp, chroot, exec) happens in
// a re-exec of this binary. The wrapper execs the user program in place, so
// the pid the supervisor waits on IS the user program once setup succeeds:
// exit codes and termination signals flow through unchanged.
func (e *Env) Execute(pol *policy.Policy) Verdict {
	var v Verdict

	errR, errW, err := os.Pipe()
	if err != nil {
		v.systemError(fmt.Sprintf("create pipe: %v", err))
		return v
	}
	defer errR.Close()

	exe, err := os.Executable()
	if err != nil {
		errW.Close()
		v.systemError(fmt.Sprintf("resolve executable: %v", err))
		return v
	}

	execPath := e.ProgramPath()
	if pol.ChrootEnabled {
		// Paths resolve inside the jail once the root is swapped.
		execPath = "/" + ProgramName
	}

	args := []string{CaseInitArg,
		"--input", e.InputPath(),
		"--output", e.OutputPath(),
		"--cpu", strconv.Itoa(pol.CPUSeconds()),
		"--as", strconv.Itoa(pol.MemoryLimit * 1024),
		"--fsize", strconv.Itoa(pol.OutputLimit),
		"--nproc", strconv.Itoa(pol.ProcessLimit),
		"--stack", strconv.Itoa(pol.StackLimit * 1024),
	}
	if pol.SeccompEnabled {
		args = append(args, "--seccomp", strings.Join(pol.Allowlist(), ","))
	}
	if pol.ChrootEnabled {
		args = append(args, "--chroot", e.Root())
	}
	args = append(args, "--", execPath)

	cmd := exec.Command(exe, args...)
	// The wrapper reports setup failures on fd 3; the read end stays with
	// the supervisor and is never inherited (O_CLOEXEC from os.Pipe).
	cmd.ExtraFiles = []*os.File{errW}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		errW.Close()
		v.systemError(fmt.Sprintf("fork: %v", err))
		return v
	}
	// Close the supervisor's copy of the write end immediately so the read
	// below sees EOF as soon as the child side is gone.
	errW.Close()

	waitErr := cmd.Wait()
	v.TimeUsed = int(time.Since(start).Milliseconds())

	ps := cmd.ProcessState
	if ps == nil {
		v.systemError(fmt.Sprintf("wait: %v", waitErr))
		return v
	}

	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		v.MemoryUsed = int(ru.Maxrss)
		logger.Debug("case finished",
			"wall_ms", v.TimeUsed,
			"cpu_ms", (ru.Utime.Sec+ru.Stime.Sec)*1000+int64(ru.Utime.Usec+ru.Stime.Usec)/1000,
			"maxrss_kb", ru.Maxrss)
	}

	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		v.systemError("wait: no status")
		return v
	}
	v.classifyStatus(ws)
	v.applyLimitChecks(pol)

	// All write ends are closed by now, so this read cannot block: either
	// the wrapper left a diagnostic or we get immediate EOF. Bytes here
	// mean setup died before the exec, which says nothing about the
	// program: a system error, not a program verdict.
	if msg, _ := io.ReadAll(io.LimitReader(errR, 1024)); len(msg) > 0 {
		v.systemError(strings.TrimSpace(string(msg)))
	}
	return v
}

// classifyStatus maps the kernel wait status onto the verdict.
func (v *Verdict) classifyStatus(ws syscall.WaitStatus) {
	if ws.Exited() {
		v.Status = ws.ExitStatus()
		if v.Status != 0 {
			v.RuntimeError = true
			v.ErrorMessage = fmt.Sprintf("program exited abnormally, exit code: %d", v.Status)
		}
		return
	}
	if !ws.Signaled() {
		return
	}

	sig := ws.Signal()
	v.Status = int(sig)
	switch sig {
	case unix.SIGXCPU:
		v.TimeLimitExceeded = true
		v.ErrorMessage = "time limit exceeded"
	case unix.SIGXFSZ:
		// Output overflow carries no dedicated flag, only the message.
		v.ErrorMessage = "output file size exceeded"
	case unix.SIGSEGV:
		v.RuntimeError = true
		v.ErrorMessage = "segmentation fault"
	case unix.SIGABRT:
		v.RuntimeError = true
		v.ErrorMessage = "program aborted"
	default:
		v.RuntimeError = true
		v.ErrorMessage = fmt.Sprintf("program killed by signal: %d", int(sig))
	}
}
