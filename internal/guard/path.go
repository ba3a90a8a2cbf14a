// Package guard validates untrusted input before it reaches the filesystem
// or the network: archive entry names and repository URLs.
package guard

import (
	"path/filepath"
	"strings"
)

// IsSafeExtractionPath reports whether entryPath, joined onto targetDir,
// stays inside targetDir. Absolute entries are rejected outright; the
// prefix check on the cleaned absolute path is the actual gate since
// resolution itself collapses ".." segments.
func IsSafeExtractionPath(entryPath, targetDir string) bool {
	if entryPath == "" || strings.ContainsRune(entryPath, 0) {
		return false
	}
	if isAbsoluteEntry(entryPath) {
		return false
	}

	target, err := filepath.Abs(targetDir)
	if err != nil {
		return false
	}
	target = filepath.Clean(target)

	// Archives may use either separator regardless of the host OS.
	normalized := filepath.FromSlash(strings.ReplaceAll(entryPath, `\`, "/"))
	resolved, err := filepath.Abs(filepath.Join(target, normalized))
	if err != nil {
		return false
	}
	resolved = filepath.Clean(resolved)

	if resolved == target {
		return true
	}
	return strings.HasPrefix(resolved, target+string(filepath.Separator))
}

func isAbsoluteEntry(p string) bool {
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return true
	}
	// Windows drive letters are absolute even when extracting on unix.
	if len(p) >= 2 && p[1] == ':' {
		return true
	}
	return filepath.IsAbs(p)
}
