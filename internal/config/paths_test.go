package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolvePaths(t *testing.T) {
	testDir := t.TempDir()
	claudeDir := t.TempDir()
	t.Setenv("CCX_DIR", testDir)
	t.Setenv("CLAUDE_CONFIG_DIR", claudeDir)

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths() error: %v", err)
	}

	if paths.CcxDir != testDir {
		t.Errorf("CcxDir = %q, want %q", paths.CcxDir, testDir)
	}

	if paths.ExtensionsDir != filepath.Join(testDir, "extensions") {
		t.Errorf("ExtensionsDir = %q, want %q", paths.ExtensionsDir, filepath.Join(testDir, "extensions"))
	}

	if paths.ClaudeDir != claudeDir {
		t.Errorf("ClaudeDir = %q, want %q", paths.ClaudeDir, claudeDir)
	}

	if paths.RegistryPath() != filepath.Join(testDir, "registry.json") {
		t.Errorf("RegistryPath() = %q", paths.RegistryPath())
	}
}

func TestPathsExtensionDir(t *testing.T) {
	paths := &Paths{
		ExtensionsDir: "/home/user/.ccx/extensions",
	}

	got := paths.ExtensionDir("acme/lint")
	want := "/home/user/.ccx/extensions/acme--lint"
	if got != want {
		t.Errorf("ExtensionDir() = %q, want %q", got, want)
	}
}

func TestIsInitialized(t *testing.T) {
	paths := &Paths{CcxDir: t.TempDir()}
	if paths.IsInitialized() {
		t.Fatal("IsInitialized() = true before registry exists")
	}

	if err := os.WriteFile(paths.RegistryPath(), []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}
	if !paths.IsInitialized() {
		t.Error("IsInitialized() = false after registry created")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("CCX_LOG_LEVEL", "")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.GitHub.Timeout.Duration != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.GitHub.Timeout)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %q, want file", cfg.Cache.Backend)
	}
	if !cfg.LinkExtensions {
		t.Error("LinkExtensions = false, want true by default")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := `
[github]
timeout = "10s"
topic = "my-topic"

[cache]
backend = "redis"
ttl = "1m"
`
	if err := os.WriteFile(filepath.Join(dir, "ccx.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("CCX_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.GitHub.Timeout.Duration != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.GitHub.Timeout)
	}
	if cfg.GitHub.Topic != "my-topic" {
		t.Errorf("Topic = %q", cfg.GitHub.Topic)
	}
	// Untouched keys keep their defaults.
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Errorf("APIURL = %q", cfg.GitHub.APIURL)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL.Duration != time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("Token = %q, want env override", cfg.GitHub.Token)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("CCX_LOG_LEVEL", "")
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.ClaudeCodeVersion = "1.4.0"
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.ClaudeCodeVersion != "1.4.0" {
		t.Errorf("ClaudeCodeVersion = %q", loaded.ClaudeCodeVersion)
	}
	if loaded.Cache.TTL.Duration != 5*time.Minute {
		t.Errorf("TTL = %v", loaded.Cache.TTL)
	}
}
