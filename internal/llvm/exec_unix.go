//go:build unix

package llvm

import (
	"os"

	"golang.org/x/sys/unix"
)

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
