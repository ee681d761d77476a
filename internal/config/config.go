// Package config loads cargo-pgo settings from cargo-pgo.toml and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/qiniu/x/log"
)

const (
	// FileName is looked up from the working directory upwards.
	FileName = "cargo-pgo.toml"
	// PathEnv points at an explicit config file.
	PathEnv = "CARGO_PGO_CONFIG"
)

// Config holds the tool settings.
type Config struct {
	Cargo string `toml:"cargo"`
	Rustc string `toml:"rustc"`
	PGO   PGO    `toml:"pgo"`
	Bolt  Bolt   `toml:"bolt"`
	Log   Log    `toml:"log"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

// PGO configures the profile-guided optimization workflow.
type PGO struct {
	// KeepProfiles keeps existing .profraw files when instrumenting again.
	KeepProfiles bool `toml:"keep-profiles"`
}

// Bolt configures the BOLT workflow.
type Bolt struct {
	InstrumentArgs []string `toml:"instrument-args"`
	OptimizeArgs   []string `toml:"optimize-args"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// DefaultOptimizeArgs are passed to llvm-bolt when optimizing.
var DefaultOptimizeArgs = []string{
	"-reorder-blocks=ext-tsp",
	"-reorder-functions=hfsort",
	"-split-functions",
	"-split-all-cold",
	"-split-eh",
	"-dyno-stats",
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Cargo: "cargo",
		Rustc: "",
		Bolt: Bolt{
			OptimizeArgs: append([]string(nil), DefaultOptimizeArgs...),
		},
		Log: Log{Level: "info"},
	}
}

// Find walks up from startDir to locate FileName.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Resolve loads the config for startDir. The file named by $CARGO_PGO_CONFIG
// wins over a discovered cargo-pgo.toml. $CARGO and $RUSTC override the file.
func Resolve(startDir string, getenv func(string) string) (*Config, error) {
	path := getenv(PathEnv)
	if path == "" {
		found, ok, err := Find(startDir)
		if err != nil {
			return nil, err
		}
		if ok {
			path = found
		}
	}

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// cargo sets $CARGO when it runs an external subcommand.
	if cargo := getenv("CARGO"); cargo != "" {
		cfg.Cargo = cargo
	}
	if rustc := getenv("RUSTC"); rustc != "" {
		cfg.Rustc = rustc
	}
	return cfg, nil
}

// ParseLevel maps a level name to a qiniu/x/log output level.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(name) {
	case "debug":
		return log.Ldebug, nil
	case "", "info":
		return log.Linfo, nil
	case "warn", "warning":
		return log.Lwarn, nil
	case "error":
		return log.Lerror, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
