//go:build !linux

package sandbox

import (
	"github.com/ehrlich-b/gavel/internal/policy"
)

// Execute needs rlimits, seccomp, chroot, and wait-with-rusage: Linux only.
func (e *Env) Execute(pol *policy.Policy) Verdict {
	var v Verdict
	v.systemError("isolated execution is only supported on linux")
	return v
}

// CheckAllowlist has nothing to resolve off Linux.
func CheckAllowlist(names []string) []string {
	return nil
}

// CaseInit is only reachable through the Linux re-exec path.
func CaseInit(args []string) {
	panic("_case_init is only supported on linux")
}
