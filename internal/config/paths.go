package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Paths holds all resolved paths for ccx operations
type Paths struct {
	CcxDir        string // ~/.ccx (ccx data directory)
	ExtensionsDir string // ~/.ccx/extensions (installed extension trees)
	CacheDir      string // ~/.ccx/cache (GitHub response cache)
	ClaudeDir     string // ~/.claude or $CLAUDE_CONFIG_DIR (where extensions are linked)
}

// ResolvePaths resolves all paths based on environment and defaults
func ResolvePaths() (*Paths, error) {
	ccxDir := os.Getenv("CCX_DIR")
	claudeDir := os.Getenv("CLAUDE_CONFIG_DIR")
	if ccxDir == "" || claudeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		if ccxDir == "" {
			ccxDir = filepath.Join(home, ".ccx")
		}
		if claudeDir == "" {
			claudeDir = filepath.Join(home, ".claude")
		}
	}

	return &Paths{
		CcxDir:        ccxDir,
		ExtensionsDir: filepath.Join(ccxDir, "extensions"),
		CacheDir:      filepath.Join(ccxDir, "cache"),
		ClaudeDir:     claudeDir,
	}, nil
}

// RegistryPath returns the path to registry.json
func (p *Paths) RegistryPath() string {
	return filepath.Join(p.CcxDir, "registry.json")
}

// ConfigPath returns the path to ccx.toml
func (p *Paths) ConfigPath() string {
	return filepath.Join(p.CcxDir, "ccx.toml")
}

// ExtensionDir returns the install directory for an extension id (owner/name)
func (p *Paths) ExtensionDir(id string) string {
	safeName := strings.ReplaceAll(id, "/", "--")
	return filepath.Join(p.ExtensionsDir, safeName)
}

// IsInitialized checks if the registry file exists
func (p *Paths) IsInitialized() bool {
	info, err := os.Stat(p.RegistryPath())
	if err != nil {
		return false
	}
	return !info.IsDir()
}
