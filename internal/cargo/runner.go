package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/sync/errgroup"
)

// MessageFormat is always passed to cargo: JSON records for machine
// consumption that still carry the ANSI rendered diagnostics.
const MessageFormat = "json-diagnostic-rendered-ansi"

// TargetResolver supplies the host target triple.
type TargetResolver interface {
	DefaultTarget(ctx context.Context) (string, error)
}

// TargetResolverFunc adapts a function to TargetResolver.
type TargetResolverFunc func(ctx context.Context) (string, error)

func (f TargetResolverFunc) DefaultTarget(ctx context.Context) (string, error) {
	return f(ctx)
}

// Invocation is a fully assembled driver command line.
type Invocation struct {
	Path string
	Args []string
	// Env is applied on top of the parent environment of the child only.
	Env map[string]string
}

// String renders the invocation as a shell-like command line.
func (inv *Invocation) String() string {
	var b strings.Builder
	if len(inv.Env) > 0 {
		keys := make([]string, 0, len(inv.Env))
		for k := range inv.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("env")
		for _, k := range keys {
			fmt.Fprintf(&b, " '%s=%s'", k, inv.Env[k])
		}
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "'%s'", inv.Path)
	if len(inv.Args) > 0 {
		fmt.Fprintf(&b, " '%s'", strings.Join(inv.Args, "' '"))
	}
	return b.String()
}

// Result is the outcome of a driver process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Success reports whether the process exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Err returns a *BuildError for an unsuccessful result, nil otherwise.
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	return &BuildError{ExitCode: r.ExitCode, Stderr: r.Stderr}
}

// Runner assembles and executes cargo commands.
type Runner struct {
	driver   string
	resolver TargetResolver
	dir      string
	environ  func() []string
	lookup   func(string) (string, bool)
	stderr   io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithDriver sets the cargo executable.
func WithDriver(path string) Option {
	return func(r *Runner) {
		r.driver = path
	}
}

// WithResolver sets the resolver used when the caller gave no --target.
func WithResolver(resolver TargetResolver) Option {
	return func(r *Runner) {
		r.resolver = resolver
	}
}

// WithDir sets the working directory of the child process.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// WithEnviron replaces os.Environ and os.LookupEnv as the parent environment.
func WithEnviron(environ []string) Option {
	return func(r *Runner) {
		r.environ = func() []string { return environ }
		r.lookup = func(key string) (value string, found bool) {
			// last one wins, as in mergeEnv
			for _, kv := range environ {
				if k, v, ok := strings.Cut(kv, "="); ok && k == key {
					value, found = v, true
				}
			}
			return value, found
		}
	}
}

// WithStderr makes Stream copy the child's stderr to w while it runs.
func WithStderr(w io.Writer) Option {
	return func(r *Runner) {
		r.stderr = w
	}
}

// New creates a Runner. The driver defaults to "cargo".
func New(opts ...Option) *Runner {
	r := &Runner{
		driver:  "cargo",
		environ: os.Environ,
		lookup:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Driver returns the cargo executable used by r.
func (r *Runner) Driver() string {
	return r.driver
}

// Prepare builds the invocation for cmd:
//
//	<driver> <cmd> --release --message-format json-diagnostic-rendered-ansi [--target <triple>] <args...>
//
// args are filtered with ParseArgs first. The resolver is only consulted
// when args carry no --target.
func (r *Runner) Prepare(ctx context.Context, cmd Command, args []string, env map[string]string) (*Invocation, error) {
	parsed := ParseArgs(args)

	cmdArgs := []string{cmd.String(), "--release", "--message-format", MessageFormat}

	// With an explicit --target, cargo does not apply RUSTFLAGS to build
	// scripts and proc macros, so only the final artifact gets instrumented.
	if !parsed.HasTarget {
		if r.resolver == nil {
			return nil, &ConfigError{Err: errors.New("no target resolver configured")}
		}
		target, err := r.resolver.DefaultTarget(ctx)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		cmdArgs = append(cmdArgs, "--target", target)
	}
	cmdArgs = append(cmdArgs, parsed.Filtered...)

	overlay := make(map[string]string, len(env))
	for k, v := range env {
		overlay[k] = v
	}
	return &Invocation{Path: r.driver, Args: cmdArgs, Env: overlay}, nil
}

func (r *Runner) command(ctx context.Context, inv *Invocation) *exec.Cmd {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Env = mergeEnv(r.environ(), inv.Env)
	if r.dir != "" {
		cmd.Dir = r.dir
	}
	return cmd
}

// Output runs inv to completion and captures both output streams.
// A non-zero exit status is reported through Result, not as an error.
func (r *Runner) Output(ctx context.Context, inv *Invocation) (*Result, error) {
	cmd := r.command(ctx, inv)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Executing cargo command:", inv)
	err := cmd.Run()
	return finish(inv, &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err)
}

// Stream runs inv and passes every stdout record to handle as soon as it is
// written, in order. Stdout and stderr are still captured in the Result.
func (r *Runner) Stream(ctx context.Context, inv *Invocation, handle func(Message)) (*Result, error) {
	cmd := r.command(ctx, inv)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Path: inv.Path, Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Path: inv.Path, Err: err}
	}

	log.Debug("Executing cargo command:", inv)
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Path: inv.Path, Err: err}
	}

	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		tee := io.TeeReader(stdoutPipe, &stdout)
		if err := ParseStream(tee, handle); err != nil {
			// keep reading so the child never blocks on a full pipe
			io.Copy(io.Discard, tee)
			return err
		}
		return nil
	})
	g.Go(func() error {
		var w io.Writer = &stderr
		if r.stderr != nil {
			w = io.MultiWriter(&stderr, r.stderr)
		}
		_, err := io.Copy(w, stderrPipe)
		return err
	})
	readErr := g.Wait()
	waitErr := cmd.Wait()

	res, err := finish(inv, &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, waitErr)
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return res, fmt.Errorf("read cargo output: %w", readErr)
	}
	return res, nil
}

func finish(inv *Invocation, res *Result, err error) (*Result, error) {
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return nil, &SpawnError{Path: inv.Path, Err: err}
}

// WithFlags runs cmd in release mode with flags appended to RUSTFLAGS and
// returns the captured output. On a non-zero exit status it returns both the
// Result and a *BuildError carrying the captured stderr.
func (r *Runner) WithFlags(ctx context.Context, cmd Command, flags string, args []string) (*Result, error) {
	inv, err := r.Prepare(ctx, cmd, args, FlagsOverlay(r.lookup, flags))
	if err != nil {
		return nil, err
	}
	res, err := r.Output(ctx, inv)
	if err != nil {
		return nil, err
	}
	return res, res.Err()
}

// StreamWithFlags is WithFlags with stdout records passed to handle while
// cargo runs.
func (r *Runner) StreamWithFlags(ctx context.Context, cmd Command, flags string, args []string, handle func(Message)) (*Result, error) {
	inv, err := r.Prepare(ctx, cmd, args, FlagsOverlay(r.lookup, flags))
	if err != nil {
		return nil, err
	}
	res, err := r.Stream(ctx, inv, handle)
	if err != nil {
		return res, err
	}
	return res, res.Err()
}
