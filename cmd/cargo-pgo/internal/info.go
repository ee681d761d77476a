package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goplus/cargo-pgo/internal/llvm"
	"github.com/goplus/cargo-pgo/internal/rustc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// minRustc is the first release with stable -Cprofile-generate.
const minRustc = "1.37.0"

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show whether the environment is ready for PGO and BOLT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printInfo(cmd.Context(), os.Stdout, sess.rustc)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

type toolStatus struct {
	name    string
	tool    *llvm.Tool
	version string
	err     error
}

func printInfo(ctx context.Context, w io.Writer, rc *rustc.Rustc) error {
	info, err := rc.Version(ctx)
	if err != nil {
		return err
	}
	if info.AtLeast(minRustc) {
		fmt.Fprintf(w, "%s rustc %s (host %s) is installed\n", okMark(), info.Release, info.Host)
	} else {
		fmt.Fprintf(w, "%s rustc %s is too old, PGO requires at least %s\n", failMark(), info.Release, minRustc)
	}

	names := []string{llvm.Profdata, llvm.Bolt, llvm.MergeFdata}
	statuses := make([]toolStatus, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			s := toolStatus{name: name}
			if s.tool, s.err = llvm.Locate(ctx, rc, name); s.err == nil && name != llvm.MergeFdata {
				s.version, _ = s.tool.Version(ctx)
			}
			statuses[i] = s
			return nil
		})
	}
	g.Wait()

	for _, s := range statuses {
		printTool(w, s, info.LLVMMajor())
	}
	return nil
}

func printTool(w io.Writer, s toolStatus, rustcLLVM string) {
	if s.err != nil {
		fmt.Fprintf(w, "%s %s could not be found\n", failMark(), s.name)
		var nf *llvm.NotFoundError
		if errors.As(s.err, &nf) {
			fmt.Fprintf(w, "  %s\n", nf.Hint())
		}
		return
	}
	line := fmt.Sprintf("%s %s is installed at %s", okMark(), s.name, s.tool.Path)
	if s.version != "" {
		line += " (LLVM " + s.version + ")"
	}
	fmt.Fprintln(w, line)

	// llvm-profdata must read the profile format of the rustc LLVM.
	if s.name == llvm.Profdata && s.version != "" && rustcLLVM != "" {
		major, _, _ := strings.Cut(s.version, ".")
		if major != rustcLLVM {
			fmt.Fprintf(w, "  %s LLVM %s does not match the LLVM %s used by rustc, profiles may fail to merge\n",
				color.YellowString("warning:"), major, rustcLLVM)
		}
	}
}

func okMark() string {
	return color.GreenString("[OK]")
}

func failMark() string {
	return color.RedString("[ERROR]")
}
