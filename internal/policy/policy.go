package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the per-case limits and isolation toggles. Loaded once at
// startup and treated as immutable afterwards.
type Policy struct {
	TimeLimit    int `json:"time_limit" yaml:"time_limit"`       // CPU time, milliseconds
	MemoryLimit  int `json:"memory_limit" yaml:"memory_limit"`   // address space, KB
	OutputLimit  int `json:"output_limit" yaml:"output_limit"`   // bytes per output file
	ProcessLimit int `json:"process_limit" yaml:"process_limit"` // max processes for the executing uid
	StackLimit   int `json:"stack_limit" yaml:"stack_limit"`     // KB

	SeccompEnabled bool `json:"seccomp_enabled" yaml:"seccomp_enabled"`
	ChrootEnabled  bool `json:"chroot_enabled" yaml:"chroot_enabled"`

	// SyscallAllowlist overrides the default allow-list installed when
	// seccomp is enabled. Names unknown on the build architecture are
	// warned about at engine startup and left out of the installed filter.
	SyscallAllowlist []string `json:"syscall_allowlist,omitempty" yaml:"syscall_allowlist,omitempty"`
}

// DefaultSyscallAllowlist is the reviewed baseline filter. It covers what a
// statically linked program needs to read stdin, write stdout, and exit,
// plus execve: the filter is installed before the final exec, so the exec
// itself must pass it.
var DefaultSyscallAllowlist = []string{
	"read", "write", "open", "close", "fstat",
	"mmap", "mprotect", "munmap", "brk",
	"rt_sigaction", "rt_sigprocmask", "rt_sigreturn",
	"ioctl", "access", "exit", "exit_group",
	"execve",
}

// filePolicy mirrors Policy with pointer fields so a missing key can be
// told apart from a zero value. Unknown keys decode to nothing and are
// ignored.
type filePolicy struct {
	TimeLimit        *int     `json:"time_limit" yaml:"time_limit"`
	MemoryLimit      *int     `json:"memory_limit" yaml:"memory_limit"`
	OutputLimit      *int     `json:"output_limit" yaml:"output_limit"`
	ProcessLimit     *int     `json:"process_limit" yaml:"process_limit"`
	StackLimit       *int     `json:"stack_limit" yaml:"stack_limit"`
	SeccompEnabled   *bool    `json:"seccomp_enabled" yaml:"seccomp_enabled"`
	ChrootEnabled    *bool    `json:"chroot_enabled" yaml:"chroot_enabled"`
	SyscallAllowlist []string `json:"syscall_allowlist" yaml:"syscall_allowlist"`
}

// Load reads a policy file. The format follows the extension: .yaml/.yml
// decode as YAML, everything else as JSON.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	var fp filePolicy
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fp); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &fp); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
	}

	var missing []string
	need := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	need("time_limit", fp.TimeLimit != nil)
	need("memory_limit", fp.MemoryLimit != nil)
	need("output_limit", fp.OutputLimit != nil)
	need("process_limit", fp.ProcessLimit != nil)
	need("stack_limit", fp.StackLimit != nil)
	need("seccomp_enabled", fp.SeccompEnabled != nil)
	need("chroot_enabled", fp.ChrootEnabled != nil)
	if len(missing) > 0 {
		return nil, fmt.Errorf("policy %s: missing required keys: %s", path, strings.Join(missing, ", "))
	}

	p := &Policy{
		TimeLimit:        *fp.TimeLimit,
		MemoryLimit:      *fp.MemoryLimit,
		OutputLimit:      *fp.OutputLimit,
		ProcessLimit:     *fp.ProcessLimit,
		StackLimit:       *fp.StackLimit,
		SeccompEnabled:   *fp.SeccompEnabled,
		ChrootEnabled:    *fp.ChrootEnabled,
		SyscallAllowlist: fp.SyscallAllowlist,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the numeric invariants.
func (p *Policy) Validate() error {
	checks := []struct {
		name string
		val  int
	}{
		{"time_limit", p.TimeLimit},
		{"memory_limit", p.MemoryLimit},
		{"output_limit", p.OutputLimit},
		{"process_limit", p.ProcessLimit},
		{"stack_limit", p.StackLimit},
	}
	for _, c := range checks {
		if c.val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", c.name, c.val)
		}
	}
	return nil
}

// CPUSeconds is the whole-second CPU cap applied to the kernel:
// ceil(time_limit / 1000). A 500ms limit still gets a 1s hard cap.
func (p *Policy) CPUSeconds() int {
	return (p.TimeLimit + 999) / 1000
}

// Allowlist resolves the effective syscall allow-list. When the filesystem
// jail is enabled, chroot and chdir are appended: the jail step runs after
// the filter is installed, so the filter has to let it through.
func (p *Policy) Allowlist() []string {
	base := p.SyscallAllowlist
	if len(base) == 0 {
		base = DefaultSyscallAllowlist
	}
	out := make([]string, 0, len(base)+2)
	seen := make(map[string]bool, len(base)+2)
	add := func(names ...string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(base...)
	if p.ChrootEnabled {
		add("chroot", "chdir")
	}
	return out
}
