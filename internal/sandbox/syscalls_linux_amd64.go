//go:build linux && amd64

package sandbox

import "golang.org/x/sys/unix"

// Legacy syscalls that exist on x86-64 but were never wired up on arm64.
var syscallsArch = map[string]uint32{
	"open":       unix.SYS_OPEN,
	"access":     unix.SYS_ACCESS,
	"stat":       unix.SYS_STAT,
	"lstat":      unix.SYS_LSTAT,
	"arch_prctl": unix.SYS_ARCH_PRCTL,
}
