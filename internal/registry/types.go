// Package registry persists the set of known and installed extensions in a
// JSON file shared by every ccx process on the machine.
package registry

import (
	"fmt"
	"time"
)

// SchemaVersion is the current registry file format version
const SchemaVersion = "1.0.0"

// ExtensionType is the kind of extension
type ExtensionType string

const (
	TypePlugin  ExtensionType = "plugin"
	TypeSkill   ExtensionType = "skill"
	TypeCommand ExtensionType = "command"
	TypeAgent   ExtensionType = "agent"
)

// AllTypes returns all extension types in order
func AllTypes() []ExtensionType {
	return []ExtensionType{TypePlugin, TypeSkill, TypeCommand, TypeAgent}
}

// ExtensionRecord is one extension in registry.json.
// Version is the latest known upstream version; InstalledVersion is what is
// on disk and is non-nil exactly when IsInstalled is true.
type ExtensionRecord struct {
	ID               string             `json:"id"` // owner/name
	Type             ExtensionType      `json:"type"`
	Name             string             `json:"name"`
	DisplayName      string             `json:"displayName"`
	Version          string             `json:"version"`
	Description      string             `json:"description"`
	Author           string             `json:"author"`
	RepositoryURL    string             `json:"repositoryUrl"`
	Stars            int                `json:"stars"`
	Downloads        int                `json:"downloads"`
	LastUpdated      *time.Time         `json:"lastUpdated"`
	IsOfficial       bool               `json:"isOfficial"`
	IsFeatured       bool               `json:"isFeatured"`
	IsInstalled      bool               `json:"isInstalled"`
	InstalledVersion *string            `json:"installedVersion"`
	HasUpdate        bool               `json:"hasUpdate"`
	Permissions      []string           `json:"permissions"`
	Keywords         []string           `json:"keywords"`
	Readme           string             `json:"readme,omitempty"`
	QualityScore     float64            `json:"qualityScore,omitempty"`
	QualityMetrics   map[string]float64 `json:"qualityMetrics,omitempty"`
	Checksum         string             `json:"checksum,omitempty"`
	ReleaseURL       string             `json:"releaseUrl,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with
// the store's in-memory state.
func (r ExtensionRecord) Clone() ExtensionRecord {
	out := r
	if r.LastUpdated != nil {
		t := *r.LastUpdated
		out.LastUpdated = &t
	}
	if r.InstalledVersion != nil {
		v := *r.InstalledVersion
		out.InstalledVersion = &v
	}
	if r.Permissions != nil {
		out.Permissions = append([]string{}, r.Permissions...)
	}
	if r.Keywords != nil {
		out.Keywords = append([]string{}, r.Keywords...)
	}
	if r.QualityMetrics != nil {
		out.QualityMetrics = make(map[string]float64, len(r.QualityMetrics))
		for k, v := range r.QualityMetrics {
			out.QualityMetrics[k] = v
		}
	}
	return out
}

// MarkInstalled sets IsInstalled and InstalledVersion together.
func (r *ExtensionRecord) MarkInstalled(version string) {
	r.IsInstalled = true
	r.InstalledVersion = &version
}

// MarkUninstalled clears IsInstalled and InstalledVersion together.
func (r *ExtensionRecord) MarkUninstalled() {
	r.IsInstalled = false
	r.InstalledVersion = nil
	r.HasUpdate = false
}

// File is the on-disk representation of the registry
type File struct {
	Version     string            `json:"version"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Extensions  []ExtensionRecord `json:"extensions"`
}

// Stats summarizes the registry contents
type Stats struct {
	Total     int
	Installed int
	ByType    map[ExtensionType]int
}

// ExistingInstall describes an extension that is already installed
type ExistingInstall struct {
	ID      string
	Version string
}

func (e *ExistingInstall) String() string {
	return fmt.Sprintf("%s is already installed at version %s", e.ID, e.Version)
}
