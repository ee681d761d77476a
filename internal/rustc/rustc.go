// Package rustc queries the Rust compiler for host and version information.
package rustc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/mod/semver"
)

// Rustc runs the rustc executable at Path.
type Rustc struct {
	Path string
}

// New returns a Rustc using path, or $RUSTC, or "rustc".
func New(path string) *Rustc {
	if path == "" {
		path = os.Getenv("RUSTC")
	}
	if path == "" {
		path = "rustc"
	}
	return &Rustc{Path: path}
}

// VersionInfo is the parsed output of `rustc -vV`.
type VersionInfo struct {
	Release string
	Host    string
	LLVM    string
}

// AtLeast reports whether the rustc release is at least min ("1.70.0").
// Pre-release suffixes such as "-nightly" are ignored.
func (v *VersionInfo) AtLeast(min string) bool {
	return semver.Compare(canonical(v.Release), canonical(min)) >= 0
}

// LLVMMajor returns the major LLVM version, e.g. "17", or "" if unknown.
func (v *VersionInfo) LLVMMajor() string {
	if v.LLVM == "" {
		return ""
	}
	return strings.TrimPrefix(semver.Major(canonical(v.LLVM)), "v")
}

// canonical turns "1.70.0-nightly" into "v1.70.0".
func canonical(version string) string {
	version, _, _ = strings.Cut(version, "-")
	return semver.Canonical("v" + version)
}

// Version runs `rustc -vV`.
func (r *Rustc) Version(ctx context.Context) (*VersionInfo, error) {
	out, err := r.output(ctx, "-vV")
	if err != nil {
		return nil, err
	}
	return parseVersion(out)
}

// DefaultTarget returns the host target triple.
func (r *Rustc) DefaultTarget(ctx context.Context) (string, error) {
	info, err := r.Version(ctx)
	if err != nil {
		return "", err
	}
	return info.Host, nil
}

// Sysroot returns the output of `rustc --print sysroot`.
func (r *Rustc) Sysroot(ctx context.Context) (string, error) {
	out, err := r.output(ctx, "--print", "sysroot")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func parseVersion(out string) (*VersionInfo, error) {
	info := &VersionInfo{}
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "release":
			info.Release = value
		case "host":
			info.Host = value
		case "LLVM version":
			info.LLVM = value
		}
	}
	if info.Host == "" {
		return nil, fmt.Errorf("rustc -vV: no host line in output")
	}
	return info, nil
}

func (r *Rustc) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s %s: %s", r.Path, strings.Join(args, " "), msg)
		}
		return "", fmt.Errorf("%s %s: %w", r.Path, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}
