package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ehrlich-b/gavel/internal/logger"
)

// CaseInitArg is the hidden argv[1] that re-execs this binary as the child
// setup wrapper. main dispatches it to CaseInit before cobra sees argv.
const CaseInitArg = "_case_init"

// Names of the staged files inside the sandbox root. The child wrapper and
// the supervisor agree on these; after chroot they resolve at "/".
const (
	ProgramName = "program"
	InputName   = "input"
	OutputName  = "output"
)

// Env owns the on-disk sandbox subtree. It is prepared once at engine
// construction, restaged per case, and destroyed on teardown.
type Env struct {
	root string
}

// Root returns the sandbox root path.
func (e *Env) Root() string {
	return e.root
}

// ProgramPath is the staged binary location on the host side.
func (e *Env) ProgramPath() string {
	return filepath.Join(e.root, ProgramName)
}

// InputPath is the staged input location on the host side.
func (e *Env) InputPath() string {
	return filepath.Join(e.root, InputName)
}

// OutputPath is where the child writes its redirected stdout/stderr.
func (e *Env) OutputPath() string {
	return filepath.Join(e.root, OutputName)
}

// Prepare creates the sandbox tree under root. When populate is set (the
// filesystem jail is enabled), the shared library directories are mirrored
// from the host so dynamically linked programs can run inside the jail.
// Structural failures are fatal; individual library files that cannot be
// copied are logged and skipped (hosts vary).
func Prepare(root string, populate bool) (*Env, error) {
	for _, dir := range []string{"bin", "lib", "lib64", "usr/lib", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("create sandbox dir %s: %w", dir, err)
		}
	}

	e := &Env{root: root}
	if !populate {
		return e, nil
	}

	if err := copyEntry("/bin/sh", filepath.Join(root, "bin", "sh")); err != nil {
		logger.Warn("sandbox: stage interpreter", "err", err)
	}
	for _, lib := range []string{"lib", "lib64"} {
		src := "/" + lib
		if _, err := os.Stat(src); err != nil {
			logger.Debug("sandbox: host library dir absent", "dir", src)
			continue
		}
		if err := copyTree(src, filepath.Join(root, lib)); err != nil {
			return nil, fmt.Errorf("populate %s: %w", lib, err)
		}
	}
	return e, nil
}

// StageCase copies the user binary and the case input into the sandbox,
// overwriting any previous case, and drops the prior output file so every
// case starts from a truncated slate.
func (e *Env) StageCase(binaryPath, inputPath string) error {
	if err := copyEntry(binaryPath, e.ProgramPath()); err != nil {
		return fmt.Errorf("stage binary: %w", err)
	}
	if err := os.Chmod(e.ProgramPath(), 0755); err != nil {
		return fmt.Errorf("stage binary: %w", err)
	}
	if err := copyEntry(inputPath, e.InputPath()); err != nil {
		return fmt.Errorf("stage input: %w", err)
	}
	if err := os.Remove(e.OutputPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear output: %w", err)
	}
	return nil
}

// HarvestOutput copies the child-produced output file to dest and returns
// its contents. A missing output file is not an error: the child may have
// died before writing anything.
func (e *Env) HarvestOutput(dest string) ([]byte, error) {
	data, err := os.ReadFile(e.OutputPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output: %w", err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return nil, fmt.Errorf("harvest output: %w", err)
	}
	return data, nil
}

// Destroy removes the sandbox tree. Best-effort.
func (e *Env) Destroy() {
	if err := os.RemoveAll(e.root); err != nil {
		logger.Warn("sandbox: destroy", "root", e.root, "err", err)
	}
}

// copyTree mirrors src into dst: directories, symlinks, and regular files.
// Files and links that cannot be stat'ed, read, or recreated are skipped
// with a warning; library trees routinely contain root-only droppings. A
// directory that cannot be created or listed aborts the whole populate.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for _, ent := range entries {
		s := filepath.Join(src, ent.Name())
		d := filepath.Join(dst, ent.Name())
		info, err := os.Lstat(s)
		if err != nil {
			logger.Warn("sandbox: stat", "path", s, "err", err)
			continue
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(s)
			if err != nil {
				logger.Warn("sandbox: readlink", "path", s, "err", err)
				continue
			}
			os.Remove(d)
			if err := os.Symlink(target, d); err != nil {
				logger.Warn("sandbox: symlink", "path", d, "err", err)
			}
		case info.IsDir():
			if err := os.MkdirAll(d, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %s: %w", d, err)
			}
			if err := copyTree(s, d); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyEntry(s, d); err != nil {
				logger.Warn("sandbox: copy", "path", s, "err", err)
			}
		}
	}
	return nil
}

// copyEntry copies a regular file, preserving its mode.
func copyEntry(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
