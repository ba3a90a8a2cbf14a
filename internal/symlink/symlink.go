// Package symlink exposes installed extensions to Claude Code by linking
// each extension directory into the matching folder of the Claude config
// directory (skills/, agents/, commands/, plugins/).
package symlink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrOccupied is returned when the link path holds something ccx did not create
var ErrOccupied = errors.New("link path is occupied")

// State describes the link of one extension
type State string

const (
	StateMissing State = "missing" // nothing at the link path
	StateLinked  State = "linked"  // symlink to the extension directory
	StateBroken  State = "broken"  // symlink into the extensions dir whose target is gone
	StateForeign State = "foreign" // a file, dir or symlink ccx does not own
)

// Info contains information about a link path
type Info struct {
	Path   string
	Target string // resolved absolute target, empty when not a symlink
	State  State
}

// Linker manages links from the Claude config directory into the
// extensions directory.
type Linker struct {
	claudeDir     string
	extensionsDir string
}

// NewLinker creates a linker for claudeDir and extensionsDir
func NewLinker(claudeDir, extensionsDir string) *Linker {
	return &Linker{claudeDir: claudeDir, extensionsDir: extensionsDir}
}

// TypeDir maps an extension type to its folder under the Claude config dir
func TypeDir(extType string) (string, bool) {
	switch extType {
	case "skill":
		return "skills", true
	case "agent":
		return "agents", true
	case "command":
		return "commands", true
	case "plugin":
		return "plugins", true
	}
	return "", false
}

// LinkPath returns where the link for an extension of extType installed at
// target lives. The link is named after the install directory so two
// owners' extensions with the same name never collide.
func (l *Linker) LinkPath(extType, target string) (string, error) {
	dir, ok := TypeDir(extType)
	if !ok {
		return "", fmt.Errorf("unknown extension type %q", extType)
	}
	return filepath.Join(l.claudeDir, dir, filepath.Base(target)), nil
}

// Link points the link for target at it, replacing an existing link ccx
// owns. Anything else at the link path is left alone and ErrOccupied is
// returned.
func (l *Linker) Link(extType, target string) (string, error) {
	path, err := l.LinkPath(extType, target)
	if err != nil {
		return "", err
	}

	info, err := l.Info(path)
	if err != nil {
		return "", err
	}
	if info.State == StateForeign {
		return "", fmt.Errorf("%w: %s", ErrOccupied, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	return path, replaceLink(path, target)
}

// Unlink removes the link for target if ccx owns it. A missing link is
// not an error; a foreign one is ErrOccupied.
func (l *Linker) Unlink(extType, target string) error {
	path, err := l.LinkPath(extType, target)
	if err != nil {
		return err
	}

	info, err := l.Info(path)
	if err != nil {
		return err
	}
	switch info.State {
	case StateMissing:
		return nil
	case StateForeign:
		return fmt.Errorf("%w: %s", ErrOccupied, path)
	}
	return os.Remove(path)
}

// Info inspects a link path
func (l *Linker) Info(path string) (*Info, error) {
	info := &Info{Path: path, State: StateMissing}

	linfo, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	if linfo.Mode()&os.ModeSymlink == 0 {
		info.State = StateForeign
		return info, nil
	}

	target, err := os.Readlink(path)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	info.Target = filepath.Clean(target)

	if !l.owns(info.Target) {
		info.State = StateForeign
		return info, nil
	}
	if _, err := os.Stat(path); err != nil {
		info.State = StateBroken
		return info, nil
	}
	info.State = StateLinked
	return info, nil
}

// owns reports whether target is a direct child of the extensions dir
func (l *Linker) owns(target string) bool {
	base, err := filepath.Abs(l.extensionsDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

// replaceLink creates a relative symlink at a temporary name and renames it
// over path.
func replaceLink(path, target string) error {
	rel, err := filepath.Rel(filepath.Dir(path), target)
	if err != nil {
		rel = target
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.Symlink(rel, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
