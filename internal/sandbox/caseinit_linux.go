//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// CaseInit is called early in main when the binary is re-exec'd as the
// per-case child wrapper. It runs the ordered setup sequence between fork
// and the final exec of the user program:
//
//  1. stdin/stdout/stderr redirection onto the staged input/output files
//  2. resource limits (CPU, address space, file size, processes, stack)
//  3. optional seccomp allow-list filter (failure non-fatal)
//  4. optional chroot into the sandbox root (failure fatal)
//  5. exec of the staged binary, replacing this process
//
// Setup failures are reported as one short line on inherited pipe fd 3 and
// a nonzero exit. stdout/stderr are useless for diagnostics here: after
// step 1 they point into the case output file.
//
// Args format: --input PATH --output PATH --cpu SECS --as BYTES
// --fsize BYTES --nproc N --stack BYTES [--seccomp NAME,...]
// [--chroot ROOT] -- EXECPATH
func CaseInit(args []string) {
	// The seccomp filter is thread-scoped; stay on this thread so the
	// filter installed below governs the exec that follows it.
	runtime.LockOSThread()

	errPipe := os.NewFile(3, "errpipe")
	fail := func(format string, a ...any) {
		if errPipe != nil {
			fmt.Fprintf(errPipe, format, a...)
		}
		os.Exit(1)
	}

	var inputPath, outputPath, chrootDir string
	var allowlist []string
	var cpuSecs, asBytes, fsizeBytes, nproc, stackBytes uint64
	var cmdStart int

	atoi := func(s string) uint64 {
		n, _ := strconv.ParseUint(s, 10, 64)
		return n
	}
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			cmdStart = i + 1
			break
		}
		if i+1 < len(args) {
			switch args[i] {
			case "--input":
				inputPath = args[i+1]
				i++
			case "--output":
				outputPath = args[i+1]
				i++
			case "--cpu":
				cpuSecs = atoi(args[i+1])
				i++
			case "--as":
				asBytes = atoi(args[i+1])
				i++
			case "--fsize":
				fsizeBytes = atoi(args[i+1])
				i++
			case "--nproc":
				nproc = atoi(args[i+1])
				i++
			case "--stack":
				stackBytes = atoi(args[i+1])
				i++
			case "--seccomp":
				allowlist = strings.Split(args[i+1], ",")
				i++
			case "--chroot":
				chrootDir = args[i+1]
				i++
			}
		}
	}
	if cmdStart == 0 || cmdStart >= len(args) {
		fail("case init: missing -- separator or exec path")
	}
	execPath := args[cmdStart]

	// Keep the error channel out of the user program: close-on-exec means
	// it vanishes the moment the exec succeeds, while an exec failure can
	// still be reported on it.
	unix.CloseOnExec(3)

	inFd, err := unix.Open(inputPath, unix.O_RDONLY, 0)
	if err != nil {
		fail("file redirection failed: open input: %v", err)
	}
	outFd, err := unix.Open(outputPath, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		fail("file redirection failed: open output: %v", err)
	}

	if err := unix.Dup3(inFd, 0, 0); err != nil {
		fail("file redirection failed: stdin: %v", err)
	}
	if err := unix.Dup3(outFd, 1, 0); err != nil {
		fail("file redirection failed: stdout: %v", err)
	}
	if err := unix.Dup3(outFd, 2, 0); err != nil {
		fail("file redirection failed: stderr: %v", err)
	}
	unix.Close(inFd)
	unix.Close(outFd)

	// Soft and hard caps set to the same value. The kernel enforces these
	// directly; no supervisor-side timer is needed.
	setLimit(unix.RLIMIT_CPU, cpuSecs)
	setLimit(unix.RLIMIT_AS, asBytes)
	setLimit(unix.RLIMIT_FSIZE, fsizeBytes)
	setLimit(unix.RLIMIT_NPROC, nproc)
	setLimit(unix.RLIMIT_STACK, stackBytes)

	if len(allowlist) > 0 {
		// A filter that fails to install is dropped, not fatal: an
		// unfiltered run still has rlimits and the jail, while killing
		// the case here would misreport a judge problem as a program
		// verdict.
		installSeccomp(allowlist)
	}

	if chrootDir != "" {
		if err := unix.Chroot(chrootDir); err != nil {
			fail("chroot failed: %v", err)
		}
		if err := unix.Chdir("/"); err != nil {
			fail("chroot failed: chdir: %v", err)
		}
	}

	err = unix.Exec(execPath, []string{execPath}, []string{"PATH=/usr/bin:/bin"})
	fail("exec failed: %v", err)
}

func setLimit(resource int, value uint64) {
	lim := unix.Rlimit{Cur: value, Max: value}
	unix.Setrlimit(resource, &lim)
}
