package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() map[string]any {
	return map[string]any{
		"type":        "plugin",
		"name":        "lint-helper",
		"version":     "1.2.3",
		"description": "Runs linters",
		"author":      "acme",
		"engines":     map[string]any{"claude-code": "^1.0.0"},
		"permissions": []any{"fs:read"},
		"keywords":    []any{"lint"},
	}
}

func TestValidateAcceptsValidManifest(t *testing.T) {
	res := Validate(validManifest())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateMissingRequiredField(t *testing.T) {
	for _, field := range []string{"type", "name", "version", "description", "author"} {
		t.Run(field, func(t *testing.T) {
			m := validManifest()
			delete(m, field)

			res := Validate(m)
			require.False(t, res.Valid)

			found := false
			for _, e := range res.Errors {
				if strings.Contains(strings.ToLower(e), strings.ToLower(field)) {
					found = true
				}
			}
			assert.True(t, found, "errors %v should mention %q", res.Errors, field)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	res := Validate(map[string]any{"type": "widget"})
	require.False(t, res.Valid)
	// name, version, description, author missing plus the invalid type.
	assert.Len(t, res.Errors, 5)
}

func TestValidateInvalidType(t *testing.T) {
	m := validManifest()
	m["type"] = "theme"

	res := Validate(m)
	require.False(t, res.Valid)
	assert.Contains(t, strings.ToLower(strings.Join(res.Errors, "\n")), "invalid type")
}

func TestValidateVersion(t *testing.T) {
	m := validManifest()
	m["version"] = "not-a-version"
	assert.False(t, Validate(m).Valid)

	m["version"] = "2.0.0-beta.1+build.7"
	assert.True(t, Validate(m).Valid)
}

func TestValidateFieldTypes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"non-string name", func(m map[string]any) { m["name"] = 42.0 }, "field name must be a string"},
		{"non-string displayName", func(m map[string]any) { m["displayName"] = true }, "field displayName must be a string"},
		{"permissions not array", func(m map[string]any) { m["permissions"] = "fs:read" }, "field permissions must be an array"},
		{"keywords not array", func(m map[string]any) { m["keywords"] = map[string]any{} }, "field keywords must be an array"},
		{"permissions element", func(m map[string]any) { m["permissions"] = []any{"ok", 3.0} }, "permissions[1] must be a string"},
		{"engines array", func(m map[string]any) { m["engines"] = []any{"^1.0.0"} }, "field engines must be an object"},
		{"engines bad range", func(m map[string]any) { m["engines"] = map[string]any{"claude-code": "latest"} }, "invalid engines.claude-code range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)
			res := Validate(m)
			require.False(t, res.Valid)
			assert.Contains(t, strings.Join(res.Errors, "\n"), tt.want)
		})
	}
}

func TestValidateEngineRanges(t *testing.T) {
	for _, rng := range []string{"*", "1.0.0", "^1.0.0", "~1.2.0", ">=1.0.0", "^1.0.0 || ^2.0.0"} {
		m := validManifest()
		m["engines"] = map[string]any{"claude-code": rng, "node": ">=18"}
		assert.True(t, Validate(m).Valid, "range %q", rng)
	}
}

func TestParse(t *testing.T) {
	res := Parse([]byte(`{
		"type": "skill",
		"name": "debugging",
		"version": "0.1.0",
		"description": "Debug helper",
		"author": "sam",
		"engines": {"claude-code": ">=1.0.0"}
	}`))
	require.True(t, res.Valid, "errors: %v", res.Errors)
	require.NotNil(t, res.Manifest)
	assert.Equal(t, "skill", res.Manifest.Type)
	assert.Equal(t, ">=1.0.0", res.Manifest.EngineRange())
}

func TestParseInvalidJSON(t *testing.T) {
	res := Parse([]byte(`{"type": "plugin",`))
	assert.False(t, res.Valid)
	assert.Nil(t, res.Manifest)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "invalid JSON")
}

func TestParseValidationFailureHasNoManifest(t *testing.T) {
	res := Parse([]byte(`{"type": "plugin"}`))
	assert.False(t, res.Valid)
	assert.Nil(t, res.Manifest)
	assert.NotEmpty(t, res.Errors)
}

func TestParseYAML(t *testing.T) {
	res := ParseYAML([]byte(`
type: agent
name: reviewer
version: "1.0.0"
description: Reviews pull requests
author: acme
keywords: [review, pr]
engines:
  claude-code: "~1.2.0"
`))
	require.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Equal(t, []string{"review", "pr"}, res.Manifest.Keywords)
	assert.Equal(t, "~1.2.0", res.Manifest.EngineRange())
}

func TestParseFileAndFind(t *testing.T) {
	dir := t.TempDir()
	_, ok := Find(dir)
	assert.False(t, ok)

	path := filepath.Join(dir, "extension.yaml")
	require.NoError(t, os.WriteFile(path, []byte("type: command\nname: x\nversion: \"1.0.0\"\ndescription: d\nauthor: a\n"), 0600))

	found, ok := Find(dir)
	require.True(t, ok)
	assert.Equal(t, path, found)

	res, err := ParseFile(found)
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
}
