package cargo

import (
	"strings"

	"github.com/qiniu/x/log"
)

// Args is the caller's argument list with the flags we control removed.
type Args struct {
	Filtered []string
	// HasTarget reports whether the caller passed --target explicitly.
	HasTarget bool
}

// ParseArgs filters args in a single pass. --release and --message-format
// (with its value) are dropped because they are always added by the runner;
// --target is kept and recorded. Everything else passes through in order.
func ParseArgs(args []string) Args {
	var parsed Args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--release":
			log.Warn("Do not pass `--release` manually, it will be added automatically by cargo-pgo")
		case arg == "--message-format":
			log.Warn("Do not pass `--message-format` manually, it will be added automatically by cargo-pgo")
			// skip flag value; a trailing --message-format simply ends the loop
			i++
		case strings.HasPrefix(arg, "--message-format="):
			log.Warn("Do not pass `--message-format` manually, it will be added automatically by cargo-pgo")
		case arg == "--target", strings.HasPrefix(arg, "--target="):
			parsed.HasTarget = true
			parsed.Filtered = append(parsed.Filtered, arg)
		default:
			parsed.Filtered = append(parsed.Filtered, arg)
		}
	}
	return parsed
}
