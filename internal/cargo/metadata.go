package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata is the subset of `cargo metadata` output we rely on.
type Metadata struct {
	TargetDirectory string    `json:"target_directory"`
	WorkspaceRoot   string    `json:"workspace_root"`
	Packages        []Package `json:"packages"`
}

// Package is a workspace member.
type Package struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	ManifestPath string   `json:"manifest_path"`
	Targets      []Target `json:"targets"`
}

// Metadata runs `cargo metadata` for the workspace in the runner's directory.
func (r *Runner) Metadata(ctx context.Context) (*Metadata, error) {
	inv := &Invocation{
		Path: r.driver,
		Args: []string{"metadata", "--format-version", "1", "--no-deps"},
	}
	cmd := r.command(ctx, inv)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("cargo metadata: %s", msg)
		}
		return nil, fmt.Errorf("cargo metadata: %w", err)
	}
	return parseMetadata(stdout.Bytes())
}

func parseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("cargo metadata: %w", err)
	}
	if md.TargetDirectory == "" {
		return nil, fmt.Errorf("cargo metadata: missing target_directory")
	}
	return &md, nil
}
