package cargo

import "fmt"

// ConfigError is returned when the invocation cannot be assembled, before
// any process is started.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unable to find default target triple for your platform: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SpawnError is returned when the driver process could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to run %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// BuildError reports a driver process that exited unsuccessfully.
// Stderr holds everything the process wrote to standard error.
type BuildError struct {
	ExitCode int
	Stderr   []byte
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cargo error (exit status: %d)", e.ExitCode)
}
