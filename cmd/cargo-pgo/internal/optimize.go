package internal

import (
	"fmt"

	"github.com/goplus/cargo-pgo/internal/cargo"
	"github.com/goplus/cargo-pgo/internal/pgo"
	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [build|test|run] [-- cargo args]",
	Short: "Build an optimized binary from gathered PGO profiles",
	Long: `Optimize merges the .profraw files in <target>/pgo-profiles with llvm-profdata and
runs cargo (build by default) in release mode with the merged profile.`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	pre, cargoArgs := splitArgs(cmd, args)
	kind, err := commandFromArgs(pre)
	if err != nil {
		return err
	}
	return sess.pgo.Optimize(cmd.Context(), pgo.Options{
		Command: kind,
		Args:    cargoArgs,
	})
}

// commandFromArgs reads the optional cargo command before --.
func commandFromArgs(pre []string) (cargo.Command, error) {
	switch len(pre) {
	case 0:
		return cargo.Build, nil
	case 1:
		return cargo.ParseCommand(pre[0])
	}
	return 0, fmt.Errorf("unexpected arguments %q, pass cargo arguments after --", pre[1:])
}
