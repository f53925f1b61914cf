//go:build linux

package sandbox

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestResolveSyscalls(t *testing.T) {
	nrs, unknown := resolveSyscalls([]string{"read", "write", "exit_group"})
	if len(unknown) != 0 {
		t.Fatalf("unknown = %v", unknown)
	}
	want := []uint32{unix.SYS_READ, unix.SYS_WRITE, unix.SYS_EXIT_GROUP}
	if len(nrs) != len(want) {
		t.Fatalf("nrs = %v, want %v", nrs, want)
	}
	for i := range want {
		if nrs[i] != want[i] {
			t.Errorf("nrs[%d] = %d, want %d", i, nrs[i], want[i])
		}
	}
}

func TestResolveSyscallsUnknownSkipped(t *testing.T) {
	nrs, unknown := resolveSyscalls([]string{"read", "frobnicate", "write"})
	if len(nrs) != 2 {
		t.Errorf("nrs = %v, want 2 entries", nrs)
	}
	if len(unknown) != 1 || unknown[0] != "frobnicate" {
		t.Errorf("unknown = %v, want [frobnicate]", unknown)
	}
}

func TestCheckAllowlistCommonNames(t *testing.T) {
	common := []string{
		"read", "write", "close", "fstat", "mmap", "mprotect", "munmap",
		"brk", "rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "ioctl",
		"exit", "exit_group", "execve", "chroot", "chdir",
	}
	if unknown := CheckAllowlist(common); len(unknown) != 0 {
		t.Errorf("common names unresolved: %v", unknown)
	}
}

func TestBuildSeccompFilterEmpty(t *testing.T) {
	if prog := buildSeccompFilter(nil); prog != nil {
		t.Errorf("empty allow-list must build no program, got %d insns", len(prog))
	}
}

func TestBuildSeccompFilterShape(t *testing.T) {
	nrs := []uint32{unix.SYS_READ, unix.SYS_WRITE, unix.SYS_EXIT_GROUP}
	prog := buildSeccompFilter(nrs)

	wantLen := len(nrs) + 3
	if len(prog) != wantLen {
		t.Fatalf("len = %d, want %d", len(prog), wantLen)
	}

	// First instruction loads the syscall number.
	if prog[0].Code != unix.BPF_LD|unix.BPF_W|unix.BPF_ABS || prog[0].K != 0 {
		t.Errorf("insn 0 = %+v, want load of seccomp_data.nr", prog[0])
	}

	// Default action kills; the final instruction allows.
	kill := prog[len(prog)-2]
	allow := prog[len(prog)-1]
	if kill.Code != unix.BPF_RET|unix.BPF_K || kill.K != seccompRetKill {
		t.Errorf("penultimate insn = %+v, want ret KILL", kill)
	}
	if allow.Code != unix.BPF_RET|unix.BPF_K || allow.K != seccompRetAllow {
		t.Errorf("final insn = %+v, want ret ALLOW", allow)
	}

	// Every match jump must land exactly on the allow instruction.
	allowIdx := len(prog) - 1
	for i, nr := range nrs {
		insn := prog[1+i]
		if insn.Code != unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K {
			t.Errorf("insn %d = %+v, want jeq", 1+i, insn)
		}
		if insn.K != nr {
			t.Errorf("insn %d compares %d, want %d", 1+i, insn.K, nr)
		}
		if target := (1 + i) + 1 + int(insn.Jt); target != allowIdx {
			t.Errorf("insn %d jumps to %d, want allow at %d", 1+i, target, allowIdx)
		}
		if insn.Jf != 0 {
			t.Errorf("insn %d jf = %d, want fallthrough", 1+i, insn.Jf)
		}
	}
}
