package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/goplus/cargo-pgo/internal/bolt"
	"github.com/goplus/cargo-pgo/internal/cargo"
	"github.com/goplus/cargo-pgo/internal/config"
	"github.com/goplus/cargo-pgo/internal/llvm"
	"github.com/goplus/cargo-pgo/internal/pgo"
	"github.com/goplus/cargo-pgo/internal/rustc"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	verbose   bool
	colorMode string
)

// session is set up before any subcommand runs.
var sess *session

type session struct {
	cfg   *config.Config
	rustc *rustc.Rustc
	pgo   *pgo.Workflow
	bolt  *bolt.Workflow
}

var rootCmd = &cobra.Command{
	Use:   "cargo-pgo",
	Short: "cargo-pgo builds Rust binaries with PGO and BOLT",
	Long: `cargo-pgo wraps cargo to build Rust binaries with profile-guided optimization (PGO)
and the BOLT post-link optimizer. Arguments after -- are passed to cargo.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "Colorize output: auto, always or never")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := execute(ctx, os.Args[1:])
	if err != nil {
		report(os.Stderr, err)
		stop()
		log.Fatal(err)
	}
}

// execute runs the command line args with ctx available to every subcommand.
func execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(stripCargoSubcommand(args))
	return rootCmd.ExecuteContext(ctx)
}

// stripCargoSubcommand drops the "pgo" argument cargo passes when the tool is
// run as `cargo pgo ...`.
func stripCargoSubcommand(args []string) []string {
	if len(args) > 0 && args[0] == "pgo" {
		return args[1:]
	}
	return args
}

func setup(cmd *cobra.Command, args []string) error {
	if err := applyColor(colorMode, term.IsTerminal(int(os.Stderr.Fd()))); err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Resolve(wd, os.Getenv)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = log.Ldebug
	}
	log.SetFlags(log.Llevel)
	log.SetOutputLevel(level)
	if cfg.Path != "" {
		log.Debug("Loaded config from", cfg.Path)
	}

	sess = newSession(cfg)
	return nil
}

func newSession(cfg *config.Config) *session {
	rc := rustc.New(cfg.Rustc)
	opts := []cargo.Option{
		cargo.WithDriver(cfg.Cargo),
		cargo.WithResolver(rc),
	}
	if verbose {
		opts = append(opts, cargo.WithStderr(os.Stderr))
	}
	workflow := &pgo.Workflow{
		Runner:    cargo.New(opts...),
		Toolchain: rc,
		Stdout:    os.Stdout,
	}
	return &session{
		cfg:   cfg,
		rustc: rc,
		pgo:   workflow,
		bolt: &bolt.Workflow{
			PGO:            workflow,
			InstrumentArgs: cfg.Bolt.InstrumentArgs,
			OptimizeArgs:   cfg.Bolt.OptimizeArgs,
		},
	}
}

func applyColor(mode string, isTerminal bool) error {
	switch mode {
	case "auto":
		color.NoColor = !isTerminal
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto, always or never)", mode)
	}
	return nil
}

// report prints the details an error carries beyond its message.
func report(w io.Writer, err error) {
	var buildErr *cargo.BuildError
	if errors.As(err, &buildErr) && len(buildErr.Stderr) > 0 {
		fmt.Fprintln(w, color.RedString("%s", buildErr.Stderr))
	}
	var notFound *llvm.NotFoundError
	if errors.As(err, &notFound) {
		fmt.Fprintln(w, notFound.Hint())
	}
	if errors.Is(err, pgo.ErrNoProfiles) {
		fmt.Fprintln(w, "Run `cargo pgo build` and execute the instrumented binary to gather profiles first.")
	}
}

// splitArgs separates the positional arguments before -- from the cargo
// arguments after it.
func splitArgs(cmd *cobra.Command, args []string) (pre, cargoArgs []string) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}
