// Package env defines where profiles live inside a cargo target directory.
package env

import (
	"os"
	"path/filepath"
)

// PGODir returns the directory instrumented binaries write .profraw files to.
func PGODir(targetDir string) string {
	return filepath.Join(targetDir, "pgo-profiles")
}

// BoltDir returns the directory BOLT-instrumented binaries write .fdata files to.
func BoltDir(targetDir string) string {
	return filepath.Join(targetDir, "bolt-profiles")
}

// Prepare creates dir. When clear is set, existing contents are removed first.
func Prepare(dir string, clear bool) (string, error) {
	if clear {
		if err := os.RemoveAll(dir); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Files returns the regular files in dir whose name ends with ext, sorted by
// name. A missing dir yields no files.
func Files(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && filepath.Ext(entry.Name()) == ext {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
