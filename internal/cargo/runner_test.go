package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

const fakeCargoEnv = "CARGO_PGO_FAKE_CARGO"

// TestMain lets the test binary act as a fake cargo when re-executed by a
// Runner with fakeCargoEnv set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeCargoEnv); mode != "" {
		fakeCargo(mode, os.Args[1:])
		return
	}
	os.Exit(m.Run())
}

func fakeCargo(mode string, args []string) {
	switch mode {
	case "fail":
		fmt.Fprintln(os.Stderr, "error[E0001]: something went wrong")
		os.Exit(101)
	case "metadata":
		fmt.Println(`{"target_directory":"/work/target","workspace_root":"/work","packages":[{"name":"foo","version":"0.1.0","targets":[{"name":"foo","kind":["bin"]}]}]}`)
	default:
		fmt.Println("args: " + strings.Join(args, " "))
		fmt.Println("rustflags: " + os.Getenv(FlagsEnv))
		fmt.Println(`{"reason":"compiler-message","package_id":"foo","message":{"message":"unused variable","rendered":"warning: unused variable\n","level":"warning"}}`)
		fmt.Println(`{"reason":"compiler-artifact","package_id":"foo","target":{"name":"foo","kind":["bin"]},"filenames":["/work/target/foo"],"executable":"/work/target/foo","fresh":false}`)
		fmt.Println(`{"reason":"build-finished","success":true}`)
		fmt.Fprintln(os.Stderr, "   Compiling foo v0.1.0")
	}
	os.Exit(0)
}

// countingResolver records how many times the default target was requested.
type countingResolver struct {
	target string
	err    error
	calls  int
}

func (r *countingResolver) DefaultTarget(ctx context.Context) (string, error) {
	r.calls++
	return r.target, r.err
}

func fakeEnviron(mode string, extra ...string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, FlagsEnv+"=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, fakeCargoEnv+"="+mode)
	return append(env, extra...)
}

func fixedArgs(cmd Command) []string {
	return []string{cmd.String(), "--release", "--message-format", MessageFormat}
}

func equalArgs(a, b []string) bool {
	return strings.Join(a, "\x00") == strings.Join(b, "\x00") && len(a) == len(b)
}

func TestPrepareAddsDefaultTarget(t *testing.T) {
	resolver := &countingResolver{target: "x86_64-unknown-linux-gnu"}
	r := New(WithResolver(resolver))

	inv, err := r.Prepare(context.Background(), Build, []string{"foo", "--release", "--bar"}, nil)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	want := append(fixedArgs(Build), "--target", "x86_64-unknown-linux-gnu", "foo", "--bar")
	if !equalArgs(inv.Args, want) {
		t.Errorf("Args = %q, want %q", inv.Args, want)
	}
	if inv.Path != "cargo" {
		t.Errorf("Path = %q, want %q", inv.Path, "cargo")
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestPrepareExplicitTarget(t *testing.T) {
	resolver := &countingResolver{target: "x86_64-unknown-linux-gnu"}
	r := New(WithResolver(resolver))

	inv, err := r.Prepare(context.Background(), Build, []string{"--target", "x64", "bar"}, nil)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	want := append(fixedArgs(Build), "--target", "x64", "bar")
	if !equalArgs(inv.Args, want) {
		t.Errorf("Args = %q, want %q", inv.Args, want)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0", resolver.calls)
	}
	targets := 0
	for _, arg := range inv.Args {
		if arg == "--target" {
			targets++
		}
	}
	if targets != 1 {
		t.Errorf("--target appears %d times, want 1", targets)
	}
}

func TestPrepareSubcommand(t *testing.T) {
	r := New(WithResolver(TargetResolverFunc(func(context.Context) (string, error) {
		return "aarch64-apple-darwin", nil
	})))
	for _, cmd := range Commands() {
		inv, err := r.Prepare(context.Background(), cmd, nil, nil)
		if err != nil {
			t.Fatalf("Prepare(%v) failed: %v", cmd, err)
		}
		if inv.Args[0] != cmd.String() {
			t.Errorf("subcommand = %q, want %q", inv.Args[0], cmd.String())
		}
	}
}

func TestPrepareCopiesEnv(t *testing.T) {
	r := New(WithResolver(&countingResolver{target: "t"}))
	env := map[string]string{FlagsEnv: " -C foo"}
	inv, err := r.Prepare(context.Background(), Test, nil, env)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	env[FlagsEnv] = "changed"
	if got := inv.Env[FlagsEnv]; got != " -C foo" {
		t.Errorf("Env[%s] = %q, want %q", FlagsEnv, got, " -C foo")
	}
}

func TestPrepareResolverError(t *testing.T) {
	resolver := &countingResolver{err: errors.New("rustc not found")}
	r := New(WithDriver("/nonexistent/cargo"), WithResolver(resolver))

	_, err := r.WithFlags(context.Background(), Build, "-C foo", []string{"foo"})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
	if !strings.Contains(err.Error(), "rustc not found") {
		t.Errorf("error %q does not name the cause", err)
	}
}

func TestOutputSpawnError(t *testing.T) {
	r := New(WithDriver("/nonexistent/cargo"))
	_, err := r.WithFlags(context.Background(), Build, "-C foo", []string{"--target", "x64"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
}

func TestWithFlags(t *testing.T) {
	t.Setenv(FlagsEnv, "-C parent")
	r := New(
		WithDriver(os.Args[0]),
		WithResolver(&countingResolver{target: "x86_64-unknown-linux-gnu"}),
		WithEnviron(fakeEnviron("echo", FlagsEnv+"=-C bar")),
	)

	res, err := r.WithFlags(context.Background(), Run, "-C foo", []string{"--message-format", "short", "baz"})
	if err != nil {
		t.Fatalf("WithFlags failed: %v", err)
	}
	if !res.Success() {
		t.Fatalf("result not successful: %d", res.ExitCode)
	}
	stdout := string(res.Stdout)
	wantArgs := "args: run --release --message-format " + MessageFormat + " --target x86_64-unknown-linux-gnu baz\n"
	if !strings.Contains(stdout, wantArgs) {
		t.Errorf("stdout = %q, want it to contain %q", stdout, wantArgs)
	}
	if !strings.Contains(stdout, "rustflags: -C bar -C foo\n") {
		t.Errorf("stdout = %q, want composed RUSTFLAGS", stdout)
	}
	if !strings.Contains(string(res.Stderr), "Compiling foo") {
		t.Errorf("stderr = %q, want it captured", res.Stderr)
	}
	if got := os.Getenv(FlagsEnv); got != "-C parent" {
		t.Errorf("parent %s = %q, want it untouched", FlagsEnv, got)
	}
}

func TestWithFlagsBuildFailure(t *testing.T) {
	r := New(
		WithDriver(os.Args[0]),
		WithEnviron(fakeEnviron("fail")),
	)

	res, err := r.WithFlags(context.Background(), Build, "-C foo", []string{"--target", "x64"})
	if res == nil {
		t.Fatal("result is nil on build failure")
	}
	if res.Success() {
		t.Error("result reports success, want failure")
	}
	if res.ExitCode != 101 {
		t.Errorf("ExitCode = %d, want 101", res.ExitCode)
	}
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if buildErr.ExitCode != 101 {
		t.Errorf("BuildError.ExitCode = %d, want 101", buildErr.ExitCode)
	}
	if !strings.Contains(string(buildErr.Stderr), "error[E0001]") {
		t.Errorf("BuildError.Stderr = %q, want compiler error", buildErr.Stderr)
	}
	if !strings.Contains(err.Error(), "101") {
		t.Errorf("error %q does not include the exit status", err)
	}
}

func TestStreamPreservesOrder(t *testing.T) {
	var teed bytes.Buffer
	r := New(
		WithDriver(os.Args[0]),
		WithEnviron(fakeEnviron("echo")),
		WithStderr(&teed),
	)
	inv, err := r.Prepare(context.Background(), Build, []string{"--target", "x64"}, nil)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	var kinds []string
	res, err := r.Stream(context.Background(), inv, func(m Message) {
		kinds = append(kinds, fmt.Sprintf("%T", m))
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	want := "cargo.TextLine cargo.TextLine cargo.CompilerMessage cargo.Artifact cargo.BuildFinished"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("records = %q, want %q", got, want)
	}
	if !strings.Contains(teed.String(), "Compiling foo") {
		t.Errorf("stderr was not copied while streaming: %q", teed.String())
	}

	batch, err := r.Output(context.Background(), inv)
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if !bytes.Equal(batch.Stdout, res.Stdout) {
		t.Errorf("streamed stdout %q differs from captured stdout %q", res.Stdout, batch.Stdout)
	}
}

func TestStreamWithFlagsFailure(t *testing.T) {
	r := New(
		WithDriver(os.Args[0]),
		WithEnviron(fakeEnviron("fail")),
	)
	res, err := r.StreamWithFlags(context.Background(), Test, "-C foo", []string{"--target", "x64"}, func(Message) {})
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if res == nil || res.ExitCode != 101 {
		t.Fatalf("result = %+v, want exit code 101", res)
	}
}

func TestMetadata(t *testing.T) {
	r := New(
		WithDriver(os.Args[0]),
		WithEnviron(fakeEnviron("metadata")),
	)
	md, err := r.Metadata(context.Background())
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if md.TargetDirectory != "/work/target" {
		t.Errorf("TargetDirectory = %q, want %q", md.TargetDirectory, "/work/target")
	}
	if len(md.Packages) != 1 || md.Packages[0].Name != "foo" {
		t.Errorf("Packages = %+v, want single package foo", md.Packages)
	}
}

func TestInvocationString(t *testing.T) {
	inv := &Invocation{
		Path: "cargo",
		Args: []string{"build", "--release"},
		Env:  map[string]string{FlagsEnv: " -C foo"},
	}
	want := "env 'RUSTFLAGS= -C foo' 'cargo' 'build' '--release'"
	if got := inv.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
