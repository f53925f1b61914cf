package sandbox

import (
	"github.com/ehrlich-b/gavel/internal/policy"
)

// Verdict is the classified outcome of one case execution.
type Verdict struct {
	// Status is the exit code for a normal exit, or the terminating
	// signal number for a signaled exit.
	Status     int `json:"status"`
	TimeUsed   int `json:"time_used"`   // wall clock, ms
	MemoryUsed int `json:"memory_used"` // max RSS, KB

	ErrorMessage string `json:"error_message"`
	Output       string `json:"output"`

	TimeLimitExceeded   bool `json:"time_limit_exceeded"`
	MemoryLimitExceeded bool `json:"memory_limit_exceeded"`
	RuntimeError        bool `json:"runtime_error"`
	SystemError         bool `json:"system_error"`
}

// systemError marks v as a per-case system failure and clears any program
// classification; a supervisor-side failure says nothing about the program.
func (v *Verdict) systemError(msg string) {
	v.SystemError = true
	v.TimeLimitExceeded = false
	v.MemoryLimitExceeded = false
	v.RuntimeError = false
	v.ErrorMessage = msg
}

// applyLimitChecks runs the parent-side threshold comparisons. The kernel
// does not always deliver SIGXCPU before a normal exit, so these can
// promote a verdict; they never demote one.
func (v *Verdict) applyLimitChecks(pol *policy.Policy) {
	if v.TimeUsed > pol.TimeLimit {
		v.TimeLimitExceeded = true
		v.ErrorMessage = "time limit exceeded"
	}
	if v.MemoryUsed > pol.MemoryLimit {
		v.MemoryLimitExceeded = true
		v.ErrorMessage = "memory limit exceeded"
	}
}
