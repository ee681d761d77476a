// Package llvm locates and runs the LLVM tools used by the PGO and BOLT workflows.
package llvm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/qiniu/x/log"
)

// Tool names.
const (
	Profdata   = "llvm-profdata"
	Bolt       = "llvm-bolt"
	MergeFdata = "merge-fdata"
)

// NotFoundError is returned by Find when a tool is neither in the rustup
// toolchain nor on PATH.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("`%s` cannot be found", e.Name)
}

// Hint returns an installation hint for the missing tool.
func (e *NotFoundError) Hint() string {
	if e.Name == Profdata {
		return ProfdataInstallHint()
	}
	return BoltInstallHint()
}

// ProfdataInstallHint explains how to get llvm-profdata.
func ProfdataInstallHint() string {
	return fmt.Sprintf("Try installing `llvm-profdata` using `%s` or build LLVM manually and "+
		"add its `bin` directory to PATH.", color.BlueString("rustup component add llvm-tools-preview"))
}

// BoltInstallHint explains how to get llvm-bolt and merge-fdata.
func BoltInstallHint() string {
	return fmt.Sprintf("Try installing `llvm-bolt` and `merge-fdata` from your distribution's LLVM packages or "+
		"build LLVM with `%s` and add its `bin` directory to PATH.", color.BlueString("-DLLVM_ENABLE_PROJECTS=bolt"))
}

// Tool is a located LLVM executable.
type Tool struct {
	Name string
	Path string
}

// Find looks for name in <sysroot>/lib/rustlib/<host>/bin (installed by the
// llvm-tools-preview component) and then on PATH. sysroot and host may be
// empty to search PATH only.
func Find(name, sysroot, host string) (*Tool, error) {
	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	if sysroot != "" && host != "" {
		candidate := filepath.Join(sysroot, "lib", "rustlib", host, "bin", exe)
		if isExecutable(candidate) {
			return &Tool{Name: name, Path: candidate}, nil
		}
	}
	if path, err := exec.LookPath(exe); err == nil {
		return &Tool{Name: name, Path: path}, nil
	}
	return nil, &NotFoundError{Name: name}
}

// Run executes the tool and returns its standard output.
func (t *Tool) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Executing", t.Path, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s", t.Name, msg)
		}
		return "", fmt.Errorf("%s: %w", t.Name, err)
	}
	return stdout.String(), nil
}

// Version returns the LLVM version reported by `<tool> --version`.
func (t *Tool) Version(ctx context.Context) (string, error) {
	out, err := t.Run(ctx, "--version")
	if err != nil {
		return "", err
	}
	version := parseVersion(out)
	if version == "" {
		return "", fmt.Errorf("%s: cannot parse version from %q", t.Name, strings.TrimSpace(out))
	}
	return version, nil
}

// parseVersion extracts "17.0.6" from lines like "LLVM version 17.0.6-rust-1.75.0-stable".
func parseVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		_, rest, ok := strings.Cut(line, "LLVM version ")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		version, _, _ := strings.Cut(fields[0], "-")
		return version
	}
	return ""
}

// Toolchain provides the rustup locations searched by Locate.
type Toolchain interface {
	Sysroot(ctx context.Context) (string, error)
	DefaultTarget(ctx context.Context) (string, error)
}

// Locate finds name for the given toolchain. Failures to query the toolchain
// fall back to a PATH-only search.
func Locate(ctx context.Context, tc Toolchain, name string) (*Tool, error) {
	var sysroot, host string
	if tc != nil {
		var err error
		if sysroot, err = tc.Sysroot(ctx); err != nil {
			log.Debug("cannot query sysroot:", err)
		}
		if host, err = tc.DefaultTarget(ctx); err != nil {
			log.Debug("cannot query host target:", err)
		}
	}
	return Find(name, sysroot, host)
}
