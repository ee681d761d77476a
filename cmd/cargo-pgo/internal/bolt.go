package internal

import (
	"fmt"

	"github.com/goplus/cargo-pgo/internal/bolt"
	"github.com/spf13/cobra"
)

var boltWithPGO bool

var boltCmd = &cobra.Command{
	Use:   "bolt",
	Short: "Optimize binaries with the BOLT post-link optimizer",
}

var boltBuildCmd = &cobra.Command{
	Use:   "build [-- cargo args]",
	Short: "Build BOLT-instrumented binaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := boltOptions(cmd, args)
		if err != nil {
			return err
		}
		return sess.bolt.Instrument(cmd.Context(), opts)
	},
}

var boltOptimizeCmd = &cobra.Command{
	Use:   "optimize [-- cargo args]",
	Short: "Build BOLT-optimized binaries from gathered profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := boltOptions(cmd, args)
		if err != nil {
			return err
		}
		return sess.bolt.Optimize(cmd.Context(), opts)
	},
}

func init() {
	boltCmd.PersistentFlags().BoolVar(&boltWithPGO, "with-pgo", false, "Also apply the merged PGO profile")
	boltCmd.AddCommand(boltBuildCmd, boltOptimizeCmd)
	rootCmd.AddCommand(boltCmd)
}

func boltOptions(cmd *cobra.Command, args []string) (bolt.Options, error) {
	pre, cargoArgs := splitArgs(cmd, args)
	if len(pre) > 0 {
		return bolt.Options{}, fmt.Errorf("unexpected arguments %q, pass cargo arguments after --", pre)
	}
	return bolt.Options{Args: cargoArgs, WithPGO: boltWithPGO}, nil
}
