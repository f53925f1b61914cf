//go:build linux

package sandbox

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	seccompRetKill  = 0x00000000
	seccompRetAllow = 0x7fff0000
)

// syscallsCommon maps allow-list names shared by amd64 and arm64 to their
// numbers. Arch-only calls (open, access on amd64) live in the per-arch
// tables.
var syscallsCommon = map[string]uint32{
	"read":           unix.SYS_READ,
	"write":          unix.SYS_WRITE,
	"close":          unix.SYS_CLOSE,
	"fstat":          unix.SYS_FSTAT,
	"mmap":           unix.SYS_MMAP,
	"mprotect":       unix.SYS_MPROTECT,
	"munmap":         unix.SYS_MUNMAP,
	"brk":            unix.SYS_BRK,
	"rt_sigaction":   unix.SYS_RT_SIGACTION,
	"rt_sigprocmask": unix.SYS_RT_SIGPROCMASK,
	"rt_sigreturn":   unix.SYS_RT_SIGRETURN,
	"ioctl":          unix.SYS_IOCTL,
	"exit":           unix.SYS_EXIT,
	"exit_group":     unix.SYS_EXIT_GROUP,
	"execve":         unix.SYS_EXECVE,
	"chroot":         unix.SYS_CHROOT,
	"chdir":          unix.SYS_CHDIR,
	"openat":         unix.SYS_OPENAT,
	"newfstatat":     unix.SYS_NEWFSTATAT,
}

// resolveSyscalls maps names to numbers for this architecture, dropping
// names with no mapping. The dropped list lets the supervisor warn before
// any case runs.
func resolveSyscalls(names []string) (nrs []uint32, unknown []string) {
	for _, name := range names {
		if nr, ok := syscallsCommon[name]; ok {
			nrs = append(nrs, nr)
			continue
		}
		if nr, ok := syscallsArch[name]; ok {
			nrs = append(nrs, nr)
			continue
		}
		unknown = append(unknown, name)
	}
	return nrs, unknown
}

// CheckAllowlist reports which allow-list names have no syscall number on
// this architecture. Called at engine startup so the warning lands in the
// log instead of dying silently in the child.
func CheckAllowlist(names []string) []string {
	_, unknown := resolveSyscalls(names)
	return unknown
}

// buildSeccompFilter constructs a BPF program that allows exactly the given
// syscall numbers and kills the process on anything else.
func buildSeccompFilter(nrs []uint32) []unix.SockFilter {
	n := len(nrs)
	if n == 0 {
		return nil
	}

	// Layout: 1 load + n jeq + kill (default) + allow.
	prog := make([]unix.SockFilter, 0, n+3)

	// Load syscall number: offsetof(struct seccomp_data, nr) == 0.
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS,
		K:    0,
	})

	// Each match jumps over the kill instruction to the final allow.
	for i, nr := range nrs {
		prog = append(prog, unix.SockFilter{
			Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K,
			Jt:   uint8(n - i),
			Jf:   0,
			K:    nr,
		})
	}

	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    seccompRetKill,
	})
	prog = append(prog, unix.SockFilter{
		Code: unix.BPF_RET | unix.BPF_K,
		K:    seccompRetAllow,
	})

	return prog
}

// installSeccomp installs the allow-list filter on the calling thread. The
// caller execs on the same thread immediately after, and exec carries the
// filter over to the user program.
func installSeccomp(names []string) error {
	nrs, _ := resolveSyscalls(names)
	prog := buildSeccompFilter(nrs)
	if prog == nil {
		return nil
	}

	// PR_SET_NO_NEW_PRIVS is required before installing seccomp filters.
	if _, _, errno := unix.RawSyscall(unix.SYS_PRCTL,
		unix.PR_SET_NO_NEW_PRIVS, 1, 0); errno != 0 {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %v", errno)
	}

	bpfProg := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}

	// SECCOMP_SET_MODE_FILTER = 1
	if _, _, errno := unix.RawSyscall(unix.SYS_SECCOMP,
		1, 0, uintptr(unsafe.Pointer(&bpfProg))); errno != 0 {
		return fmt.Errorf("seccomp(SET_MODE_FILTER): %v", errno)
	}
	return nil
}
