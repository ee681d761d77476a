package cargo

import (
	"sort"
	"strings"
)

// FlagsEnv is the environment variable cargo reads extra rustc flags from.
const FlagsEnv = "RUSTFLAGS"

// ComposeFlags appends flags to the current value of FlagsEnv, separated by
// a single space. The current value is kept as is, even when empty.
func ComposeFlags(current, flags string) string {
	return current + " " + flags
}

// FlagsOverlay reads FlagsEnv once through lookup and returns the environment
// overlay that injects flags on top of it.
func FlagsOverlay(lookup func(string) (string, bool), flags string) map[string]string {
	current, _ := lookup(FlagsEnv)
	return map[string]string{FlagsEnv: ComposeFlags(current, flags)}
}

// mergeEnv returns base with override applied, sorted by key.
func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(override))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
