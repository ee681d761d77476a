package internal

import (
	"fmt"

	"github.com/goplus/cargo-pgo/internal/cargo"
	"github.com/goplus/cargo-pgo/internal/pgo"
	"github.com/spf13/cobra"
)

var keepProfiles bool

func init() {
	for _, c := range []struct {
		kind  cargo.Command
		short string
	}{
		{cargo.Build, "Build a PGO-instrumented binary"},
		{cargo.Test, "Run tests with PGO instrumentation to gather profiles"},
		{cargo.Run, "Run a PGO-instrumented binary to gather profiles"},
	} {
		rootCmd.AddCommand(newInstrumentCmd(c.kind, c.short))
	}
}

func newInstrumentCmd(kind cargo.Command, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.String() + " [-- cargo args]",
		Short: short,
		Long: fmt.Sprintf(`Runs "cargo %s" in release mode with PGO instrumentation. Profiles are written
to <target>/pgo-profiles when the instrumented code runs.`, kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			pre, cargoArgs := splitArgs(cmd, args)
			if len(pre) > 0 {
				return fmt.Errorf("unexpected arguments %q, pass cargo arguments after --", pre)
			}
			return sess.pgo.Instrument(cmd.Context(), pgo.Options{
				Command:      kind,
				Args:         cargoArgs,
				KeepProfiles: keepProfiles || sess.cfg.PGO.KeepProfiles,
			})
		},
	}
	cmd.Flags().BoolVar(&keepProfiles, "keep-profiles", false, "Keep profiles gathered by earlier runs")
	return cmd
}
