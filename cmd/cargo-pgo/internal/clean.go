package internal

import (
	"fmt"
	"os"

	"github.com/goplus/cargo-pgo/internal/env"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove gathered PGO and BOLT profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, err := sess.pgo.TargetDir(cmd.Context())
		if err != nil {
			return err
		}
		for _, dir := range []string{env.PGODir(targetDir), env.BoltDir(targetDir)} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to remove %s: %w", dir, err)
			}
			log.Info("Removed", dir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
