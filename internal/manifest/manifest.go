// Package manifest validates the declarative extension manifest
// (extension.json / extension.yaml) shipped at the root of every extension.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samhoang/ccx/internal/semver"
)

// EngineKey is the engines entry that declares the supported Claude Code range.
const EngineKey = "claude-code"

// FileNames are the manifest file names looked up in an extension root, in order.
var FileNames = []string{"extension.json", "extension.yaml", "extension.yml"}

// Types is the closed set of extension types.
var Types = []string{"plugin", "skill", "command", "agent"}

// Manifest is the typed form of a validated manifest.
type Manifest struct {
	Type        string         `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	DisplayName string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description" yaml:"description"`
	Author      string         `json:"author" yaml:"author"`
	Icon        string         `json:"icon,omitempty" yaml:"icon,omitempty"`
	Repository  string         `json:"repository,omitempty" yaml:"repository,omitempty"`
	EntryPoint  string         `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
	Engines     map[string]any `json:"engines,omitempty" yaml:"engines,omitempty"`
	Permissions []string       `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Keywords    []string       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// EngineRange returns the declared Claude Code compatibility range, or "".
func (m *Manifest) EngineRange() string {
	if m == nil || m.Engines == nil {
		return ""
	}
	rng, _ := m.Engines[EngineKey].(string)
	return rng
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Errors []string
}

// ParseResult is the outcome of Parse.
type ParseResult struct {
	Valid    bool
	Manifest *Manifest
	Errors   []string
}

var (
	requiredStrings = []string{"type", "name", "version", "description", "author"}
	optionalStrings = []string{"displayName", "icon", "repository", "entryPoint"}
	stringLists     = []string{"permissions", "keywords"}
)

// Validate checks the shape and field types of a decoded manifest and
// collects every violation instead of stopping at the first.
func Validate(raw map[string]any) Result {
	if raw == nil {
		return Result{Errors: []string{"manifest must be an object"}}
	}

	var errs []string

	for _, field := range requiredStrings {
		v, ok := raw[field]
		if !ok || v == nil {
			errs = append(errs, fmt.Sprintf("missing required field: %s", field))
			continue
		}
		if _, ok := v.(string); !ok {
			errs = append(errs, fmt.Sprintf("field %s must be a string", field))
		}
	}

	if t, ok := raw["type"].(string); ok && !isType(t) {
		errs = append(errs, fmt.Sprintf("invalid type %q: must be one of %s", t, strings.Join(Types, ", ")))
	}

	if v, ok := raw["version"].(string); ok && !semver.StrictPattern.MatchString(v) {
		errs = append(errs, fmt.Sprintf("invalid version %q: must follow semantic versioning (MAJOR.MINOR.PATCH)", v))
	}

	for _, field := range optionalStrings {
		if v, ok := raw[field]; ok && v != nil {
			if _, ok := v.(string); !ok {
				errs = append(errs, fmt.Sprintf("field %s must be a string", field))
			}
		}
	}

	if v, ok := raw["engines"]; ok && v != nil {
		errs = append(errs, validateEngines(v)...)
	}

	for _, field := range stringLists {
		v, ok := raw[field]
		if !ok || v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %s must be an array of strings", field))
			continue
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				errs = append(errs, fmt.Sprintf("%s[%d] must be a string", field, i))
			}
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateEngines(v any) []string {
	engines, ok := v.(map[string]any)
	if !ok {
		return []string{"field engines must be an object"}
	}
	rng, ok := engines[EngineKey]
	if !ok || rng == nil {
		return nil
	}
	s, ok := rng.(string)
	if !ok {
		return []string{fmt.Sprintf("engines.%s must be a string", EngineKey)}
	}
	if !semver.RangePattern.MatchString(s) {
		return []string{fmt.Sprintf("invalid engines.%s range %q", EngineKey, s)}
	}
	return nil
}

func isType(t string) bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Parse decodes JSON manifest text and validates it.
func Parse(data []byte) ParseResult {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ParseResult{Errors: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return finish(raw)
}

// ParseYAML decodes YAML manifest text and validates it.
func ParseYAML(data []byte) ParseResult {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ParseResult{Errors: []string{fmt.Sprintf("invalid YAML: %v", err)}}
	}
	return finish(normalizeYAML(raw).(map[string]any))
}

// ParseFile reads and validates a manifest, choosing the decoder by extension.
func ParseFile(path string) (ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParseResult{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data), nil
	default:
		return Parse(data), nil
	}
}

// Find returns the first manifest file present in dir.
func Find(dir string) (string, bool) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

func finish(raw map[string]any) ParseResult {
	res := Validate(raw)
	if !res.Valid {
		return ParseResult{Errors: res.Errors}
	}

	// Re-encoding the validated map is the simplest way into the typed form.
	data, err := json.Marshal(raw)
	if err != nil {
		return ParseResult{Errors: []string{fmt.Sprintf("encode manifest: %v", err)}}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ParseResult{Errors: []string{fmt.Sprintf("decode manifest: %v", err)}}
	}
	return ParseResult{Valid: true, Manifest: &m}
}

// normalizeYAML turns yaml.v3's nested values into the same shapes
// encoding/json produces so Validate sees one representation.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	}
	return v
}
