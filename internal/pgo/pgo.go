// Package pgo implements the profile-guided optimization workflow on top of
// the cargo runner: an instrumented build that writes .profraw files, and an
// optimized build that consumes the merged profile.
package pgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/cargo-pgo/internal/cargo"
	"github.com/goplus/cargo-pgo/internal/env"
	"github.com/goplus/cargo-pgo/internal/llvm"
	"github.com/qiniu/x/log"
)

// ErrNoProfiles is returned by Optimize when the profile directory holds no
// .profraw files.
var ErrNoProfiles = errors.New("no profiles were found")

// Workflow runs PGO builds for a cargo workspace.
type Workflow struct {
	Runner    *cargo.Runner
	Toolchain llvm.Toolchain
	// Stdout receives compiler diagnostics and program output.
	Stdout io.Writer
	// Now is used to name merged profiles; defaults to time.Now.
	Now func() time.Time
}

// Options selects what to build.
type Options struct {
	Command cargo.Command
	Args    []string
	// KeepProfiles keeps profiles gathered by earlier runs.
	KeepProfiles bool
}

// InstrumentFlags returns the rustc flags for an instrumented build.
func InstrumentFlags(profileDir string) string {
	return "-Cprofile-generate=" + profileDir
}

// OptimizeFlags returns the rustc flags for a build that uses profile.
func OptimizeFlags(profile string) string {
	return "-Cprofile-use=" + profile + " -Cllvm-args=-pgo-warn-missing-function"
}

// Build runs cmd with flags, relaying diagnostics to w.Stdout, and returns the
// artifacts cargo reported.
func (w *Workflow) Build(ctx context.Context, cmd cargo.Command, flags string, args []string) ([]cargo.Artifact, error) {
	relay := cargo.NewRelay(w.Stdout)
	var artifacts []cargo.Artifact
	_, err := w.Runner.StreamWithFlags(ctx, cmd, flags, args, func(m cargo.Message) {
		if a, ok := m.(cargo.Artifact); ok {
			artifacts = append(artifacts, a)
		}
		relay.Handle(m)
	})
	return artifacts, err
}

// TargetDir returns the cargo target directory of the workspace.
func (w *Workflow) TargetDir(ctx context.Context) (string, error) {
	md, err := w.Runner.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return md.TargetDirectory, nil
}

// Instrument builds opts.Command with PGO instrumentation. Profiles are
// written to <target>/pgo-profiles, which is cleared first unless
// opts.KeepProfiles is set.
func (w *Workflow) Instrument(ctx context.Context, opts Options) error {
	targetDir, err := w.TargetDir(ctx)
	if err != nil {
		return err
	}
	profileDir, err := env.Prepare(env.PGODir(targetDir), !opts.KeepProfiles)
	if err != nil {
		return fmt.Errorf("failed to prepare profile directory: %w", err)
	}
	if !opts.KeepProfiles {
		log.Debug("PGO profile directory", profileDir, "was cleared")
	}
	log.Info("PGO profiles will be stored into", profileDir)

	artifacts, err := w.Build(ctx, opts.Command, InstrumentFlags(profileDir), opts.Args)
	if err != nil {
		return err
	}

	log.Info("PGO instrumentation build finished successfully.")
	if opts.Command != cargo.Build {
		return nil
	}
	for _, a := range cargo.Executables(artifacts) {
		log.Infof("Now run %s on your workload.", a.Executable)
	}
	log.Infof("If your program creates multiple processes or you will execute it multiple times in parallel, "+
		"consider running it with the following environment variable: LLVM_PROFILE_FILE=%s",
		filepath.Join(profileDir, "%m_%p.profraw"))
	return nil
}

// MergeProfiles merges every .profraw file in profileDir with llvm-profdata
// and returns the path of the merged .profdata file.
func (w *Workflow) MergeProfiles(ctx context.Context, profileDir string) (string, error) {
	files, err := env.Files(profileDir, ".profraw")
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoProfiles, profileDir)
	}

	tool, err := llvm.Locate(ctx, w.Toolchain, llvm.Profdata)
	if err != nil {
		return "", err
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	merged := filepath.Join(profileDir, fmt.Sprintf("merged-%d.profdata", now().Unix()))
	args := append([]string{"merge", "-o", merged}, files...)
	if _, err := tool.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("failed to merge PGO profiles: %w", err)
	}
	log.Infof("Merged %d PGO profile(s) to %s", len(files), merged)
	return merged, nil
}

// Optimize merges the gathered profiles and builds opts.Command with them.
func (w *Workflow) Optimize(ctx context.Context, opts Options) error {
	targetDir, err := w.TargetDir(ctx)
	if err != nil {
		return err
	}
	profile, err := w.MergeProfiles(ctx, env.PGODir(targetDir))
	if err != nil {
		return err
	}

	artifacts, err := w.Build(ctx, opts.Command, OptimizeFlags(profile), opts.Args)
	if err != nil {
		return err
	}

	log.Info("PGO optimized build has finished successfully.")
	var exes []string
	for _, a := range cargo.Executables(artifacts) {
		exes = append(exes, a.Executable)
	}
	if len(exes) > 0 {
		log.Info("Optimized binaries:", strings.Join(exes, ", "))
	}
	return nil
}
