package symlink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Linker, string, string) {
	t.Helper()
	root := t.TempDir()
	claudeDir := filepath.Join(root, "claude")
	extDir := filepath.Join(root, "extensions")
	require.NoError(t, os.MkdirAll(filepath.Join(extDir, "acme--lint"), 0755))
	return NewLinker(claudeDir, extDir), claudeDir, extDir
}

func TestLinkAndUnlink(t *testing.T) {
	l, claudeDir, extDir := setup(t)
	target := filepath.Join(extDir, "acme--lint")

	path, err := l.Link("skill", target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(claudeDir, "skills", "acme--lint"), path)

	info, err := l.Info(path)
	require.NoError(t, err)
	assert.Equal(t, StateLinked, info.State)
	assert.Equal(t, target, info.Target)

	raw, err := os.Readlink(path)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(raw), "links are relative")

	// relinking replaces the existing link
	_, err = l.Link("skill", target)
	require.NoError(t, err)

	require.NoError(t, l.Unlink("skill", target))
	_, err = os.Lstat(path)
	assert.True(t, os.IsNotExist(err))
	assert.DirExists(t, target, "unlink never touches the extension")

	assert.NoError(t, l.Unlink("skill", target), "missing link is fine")
}

func TestLinkRefusesForeignPaths(t *testing.T) {
	l, claudeDir, extDir := setup(t)
	target := filepath.Join(extDir, "acme--lint")

	userDir := filepath.Join(claudeDir, "agents", "acme--lint")
	require.NoError(t, os.MkdirAll(userDir, 0755))

	_, err := l.Link("agent", target)
	assert.ErrorIs(t, err, ErrOccupied)
	assert.ErrorIs(t, l.Unlink("agent", target), ErrOccupied)
	assert.DirExists(t, userDir)

	// a symlink somewhere else is not ours either
	elsewhere := t.TempDir()
	foreign := filepath.Join(claudeDir, "commands", "acme--lint")
	require.NoError(t, os.MkdirAll(filepath.Dir(foreign), 0755))
	require.NoError(t, os.Symlink(elsewhere, foreign))

	info, err := l.Info(foreign)
	require.NoError(t, err)
	assert.Equal(t, StateForeign, info.State)
	_, err = l.Link("command", target)
	assert.ErrorIs(t, err, ErrOccupied)
}

func TestBrokenLink(t *testing.T) {
	l, _, extDir := setup(t)
	target := filepath.Join(extDir, "acme--lint")

	path, err := l.Link("plugin", target)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(target))

	info, err := l.Info(path)
	require.NoError(t, err)
	assert.Equal(t, StateBroken, info.State)

	require.NoError(t, l.Unlink("plugin", target))
	info, err = l.Info(path)
	require.NoError(t, err)
	assert.Equal(t, StateMissing, info.State)
}

func TestTypeDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"skill", "skills", true},
		{"agent", "agents", true},
		{"command", "commands", true},
		{"plugin", "plugins", true},
		{"theme", "", false},
	}
	for _, tt := range tests {
		got, ok := TypeDir(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}

	l, _, _ := setup(t)
	_, err := l.Link("theme", "/x")
	assert.Error(t, err)
}
