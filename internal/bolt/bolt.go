// Package bolt implements the BOLT post-link optimization workflow: binaries
// are built with relocations kept, instrumented with llvm-bolt, run to
// gather .fdata profiles, and finally rewritten with those profiles.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cargo-pgo/internal/cargo"
	"github.com/goplus/cargo-pgo/internal/env"
	"github.com/goplus/cargo-pgo/internal/llvm"
	"github.com/goplus/cargo-pgo/internal/pgo"
	"github.com/qiniu/x/log"
)

// LinkFlags keeps relocations in the linked binary, which llvm-bolt requires.
const LinkFlags = "-Clink-args=-Wl,-q"

// Workflow runs BOLT builds. It reuses the PGO workflow for building and for
// merging PGO profiles when both optimizations are combined.
type Workflow struct {
	PGO            *pgo.Workflow
	InstrumentArgs []string
	OptimizeArgs   []string
}

// Options selects what to build.
type Options struct {
	Args []string
	// WithPGO also applies the merged PGO profile to the build.
	WithPGO bool
}

// InstrumentedPath returns where the instrumented copy of exe is written.
func InstrumentedPath(exe string) string {
	return withSuffix(exe, "-bolt-instrumented")
}

// OptimizedPath returns where the optimized copy of exe is written.
func OptimizedPath(exe string) string {
	return withSuffix(exe, "-bolt-optimized")
}

func withSuffix(exe, suffix string) string {
	ext := filepath.Ext(exe)
	return strings.TrimSuffix(exe, ext) + suffix + ext
}

// ProfileDir returns the directory holding profiles of the named binary.
func ProfileDir(targetDir, name string) string {
	return filepath.Join(env.BoltDir(targetDir), name)
}

func (w *Workflow) flags(ctx context.Context, targetDir string, withPGO bool) (string, error) {
	if !withPGO {
		return LinkFlags, nil
	}
	profile, err := w.PGO.MergeProfiles(ctx, env.PGODir(targetDir))
	if err != nil {
		return "", err
	}
	return LinkFlags + " " + pgo.OptimizeFlags(profile), nil
}

func (w *Workflow) build(ctx context.Context, opts Options) (string, []cargo.Artifact, error) {
	targetDir, err := w.PGO.TargetDir(ctx)
	if err != nil {
		return "", nil, err
	}
	flags, err := w.flags(ctx, targetDir, opts.WithPGO)
	if err != nil {
		return "", nil, err
	}
	artifacts, err := w.PGO.Build(ctx, cargo.Build, flags, opts.Args)
	if err != nil {
		return "", nil, err
	}
	exes := cargo.Executables(artifacts)
	if len(exes) == 0 {
		log.Warn("No executables were built, there is nothing to process with BOLT")
	}
	return targetDir, exes, nil
}

// Instrument builds the binaries and creates BOLT-instrumented copies of them.
func (w *Workflow) Instrument(ctx context.Context, opts Options) error {
	targetDir, exes, err := w.build(ctx, opts)
	if err != nil || len(exes) == 0 {
		return err
	}
	tool, err := llvm.Locate(ctx, w.PGO.Toolchain, llvm.Bolt)
	if err != nil {
		return err
	}

	for _, exe := range exes {
		profileDir, err := env.Prepare(ProfileDir(targetDir, exe.Target.Name), true)
		if err != nil {
			return fmt.Errorf("failed to prepare BOLT profile directory: %w", err)
		}
		out := InstrumentedPath(exe.Executable)
		args := []string{
			exe.Executable,
			"-instrument",
			"-o", out,
			"--instrumentation-file=" + filepath.Join(profileDir, "profile"),
			"--instrumentation-file-append-pid",
		}
		args = append(args, w.InstrumentArgs...)
		if _, err := tool.Run(ctx, args...); err != nil {
			return fmt.Errorf("failed to instrument %s: %w", exe.Executable, err)
		}
		log.Infof("BOLT-instrumented binary %s was created. Run it on your workload, profiles will be stored into %s.", out, profileDir)
	}
	return nil
}

// Optimize builds the binaries and rewrites each one that has gathered
// profiles. Binaries without profiles are skipped with a warning.
func (w *Workflow) Optimize(ctx context.Context, opts Options) error {
	targetDir, exes, err := w.build(ctx, opts)
	if err != nil || len(exes) == 0 {
		return err
	}

	var merge, bolt *llvm.Tool
	for _, exe := range exes {
		profileDir := ProfileDir(targetDir, exe.Target.Name)
		files, err := env.Files(profileDir, ".fdata")
		if err != nil {
			return err
		}
		if len(files) == 0 {
			log.Warnf("No BOLT profiles were found for %s in %s, it will not be optimized", exe.Target.Name, profileDir)
			continue
		}

		if merge == nil {
			if merge, err = llvm.Locate(ctx, w.PGO.Toolchain, llvm.MergeFdata); err != nil {
				return err
			}
			if bolt, err = llvm.Locate(ctx, w.PGO.Toolchain, llvm.Bolt); err != nil {
				return err
			}
		}

		merged := filepath.Join(profileDir, "merged.profdata")
		data, err := merge.Run(ctx, files...)
		if err != nil {
			return fmt.Errorf("failed to merge BOLT profiles: %w", err)
		}
		if err := os.WriteFile(merged, []byte(data), 0o644); err != nil {
			return err
		}

		out := OptimizedPath(exe.Executable)
		args := append([]string{exe.Executable, "-o", out, "-data=" + merged}, w.OptimizeArgs...)
		if _, err := bolt.Run(ctx, args...); err != nil {
			return fmt.Errorf("failed to optimize %s: %w", exe.Executable, err)
		}
		log.Infof("BOLT-optimized binary %s was created.", out)
	}
	return nil
}
