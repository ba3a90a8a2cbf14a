// Package installer composes the guards, the GitHub client and the registry
// into the install, uninstall and update-check workflows.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samhoang/ccx/internal/archive"
	"github.com/samhoang/ccx/internal/config"
	cerrors "github.com/samhoang/ccx/internal/errors"
	"github.com/samhoang/ccx/internal/github"
	"github.com/samhoang/ccx/internal/guard"
	"github.com/samhoang/ccx/internal/manifest"
	"github.com/samhoang/ccx/internal/registry"
	"github.com/samhoang/ccx/internal/semver"
)

// GitHub is the part of the GitHub client the installer needs
type GitHub interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetLatestRelease(ctx context.Context, owner, repo string) (*github.Release, error)
	DownloadAsset(ctx context.Context, url string) ([]byte, error)
	BatchFetchExtensions(ctx context.Context, ids []string) (github.BatchResult, error)
}

// Linker exposes an installed extension directory to Claude Code
type Linker interface {
	Link(extType, target string) (string, error)
	Unlink(extType, target string) error
}

// Installer installs extensions from GitHub releases into the extensions
// directory and records them in the registry.
type Installer struct {
	paths       *config.Paths
	store       *registry.Store
	gh          GitHub
	linker      Linker
	hostVersion string
	logger      *zap.Logger
}

// New creates an installer. hostVersion is the Claude Code version checked
// against a manifest's engines range; empty skips the check.
func New(paths *config.Paths, store *registry.Store, gh GitHub, hostVersion string, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{
		paths:       paths,
		store:       store,
		gh:          gh,
		hostVersion: hostVersion,
		logger:      logger,
	}
}

// UseLinker makes Install link and Uninstall unlink extension directories.
// Link failures are logged; they never fail the install.
func (i *Installer) UseLinker(l Linker) {
	i.linker = l
}

// InstallOptions tunes Install
type InstallOptions struct {
	Force bool // reinstall over an existing install
}

// Install downloads the latest release of the repository at rawURL,
// validates its manifest and records it as installed.
func (i *Installer) Install(ctx context.Context, rawURL string, opts InstallOptions) (*registry.ExtensionRecord, error) {
	target := guard.ValidateRepositoryURL(rawURL)
	if !target.Valid {
		return nil, target.Err
	}
	id := target.ID()

	if existing := i.store.CheckExisting(id); existing != nil && !opts.Force {
		return nil, cerrors.NewExtensionError(id, "install",
			fmt.Errorf("%w: %s", cerrors.ErrAlreadyInstalled, existing))
	}

	repo, err := i.gh.GetRepository(ctx, target.Owner, target.Repo)
	if err != nil {
		return nil, cerrors.NewExtensionError(id, "fetch repository", err)
	}
	rel, err := i.gh.GetLatestRelease(ctx, target.Owner, target.Repo)
	if err != nil {
		return nil, cerrors.NewExtensionError(id, "fetch release", err)
	}
	asset, err := github.SelectAsset(rel.Assets, id+"@"+rel.TagName)
	if err != nil {
		return nil, cerrors.NewExtensionError(id, "select asset", err)
	}

	i.logger.Info("downloading extension",
		zap.String("id", id), zap.String("tag", rel.TagName), zap.String("asset", asset.Name))
	data, err := i.gh.DownloadAsset(ctx, asset.BrowserDownloadURL)
	if err != nil {
		return nil, cerrors.NewExtensionError(id, "download", err)
	}

	staging := filepath.Join(i.paths.ExtensionsDir, ".staging-"+uuid.NewString())
	defer os.RemoveAll(staging)

	m, checksum, err := i.unpack(id, asset.Name, data, staging)
	if err != nil {
		return nil, err
	}

	dest, err := i.extensionDir(id)
	if err != nil {
		return nil, cerrors.NewExtensionError(id, "install", err)
	}
	// A previous install is kept aside until the registry write succeeds.
	backup := ""
	if _, err := os.Stat(dest); err == nil {
		backup = dest + ".old-" + uuid.NewString()
		if err := os.Rename(dest, backup); err != nil {
			return nil, cerrors.NewExtensionError(id, "replace", err)
		}
	}
	restore := func() {
		os.RemoveAll(dest)
		if backup != "" {
			os.Rename(backup, dest)
		}
	}
	if err := os.Rename(staging, dest); err != nil {
		restore()
		return nil, cerrors.NewExtensionError(id, "move", err)
	}

	rec := recordFrom(id, m, repo, rel)
	rec.Checksum = checksum
	if readme, err := os.ReadFile(filepath.Join(dest, "README.md")); err == nil {
		rec.Readme = string(readme)
	}
	prev, hadPrev := i.store.Get(id)
	if hadPrev {
		rec.IsOfficial = prev.IsOfficial
		rec.IsFeatured = prev.IsFeatured
		rec.Downloads = prev.Downloads
	}
	rec.MarkInstalled(m.Version)

	if err := i.store.Add(ctx, rec); err != nil {
		restore()
		return nil, cerrors.NewExtensionError(id, "record", err)
	}
	if backup != "" {
		os.RemoveAll(backup)
	}

	if i.linker != nil {
		if hadPrev && prev.Type != rec.Type {
			i.unlink(prev.Type, dest)
		}
		if path, err := i.linker.Link(string(rec.Type), dest); err != nil {
			i.logger.Warn("could not link extension", zap.String("id", id), zap.Error(err))
		} else {
			i.logger.Debug("linked extension", zap.String("id", id), zap.String("link", path))
		}
	}

	i.logger.Info("installed extension", zap.String("id", id), zap.String("version", m.Version))
	return &rec, nil
}

// unpack extracts the archive into staging and validates what it contains
func (i *Installer) unpack(id, assetName string, data []byte, staging string) (*manifest.Manifest, string, error) {
	format, err := archive.DetectFormat(assetName, data)
	if err != nil {
		return nil, "", cerrors.NewExtensionError(id, "extract", err)
	}
	res, err := archive.Extract(data, format, staging)
	if err != nil {
		return nil, "", cerrors.NewExtensionError(id, "extract", err)
	}

	path, ok := manifest.Find(staging)
	if !ok {
		return nil, "", &cerrors.ValidationError{
			Subject: id,
			Issues:  []string{fmt.Sprintf("no manifest found (expected one of %s)", strings.Join(manifest.FileNames, ", "))},
		}
	}
	parsed, err := manifest.ParseFile(path)
	if err != nil {
		return nil, "", cerrors.NewExtensionError(id, "read manifest", err)
	}
	if !parsed.Valid {
		return nil, "", &cerrors.ValidationError{Subject: id, Issues: parsed.Errors}
	}

	m := parsed.Manifest
	if rng := m.EngineRange(); rng != "" && i.hostVersion != "" {
		if !semver.IsCompatible(rng, i.hostVersion) {
			return nil, "", cerrors.NewExtensionError(id, "check engines",
				fmt.Errorf("%w: requires %s, have %s", cerrors.ErrIncompatibleEngine, rng, i.hostVersion))
		}
	}
	return m, res.Checksum, nil
}

func recordFrom(id string, m *manifest.Manifest, repo *github.Repository, rel *github.Release) registry.ExtensionRecord {
	rec := registry.ExtensionRecord{
		ID:            id,
		Type:          registry.ExtensionType(m.Type),
		Name:          m.Name,
		DisplayName:   m.DisplayName,
		Version:       m.Version,
		Description:   m.Description,
		Author:        m.Author,
		RepositoryURL: repo.HTMLURL,
		Stars:         repo.StargazersCount,
		Permissions:   m.Permissions,
		Keywords:      m.Keywords,
		ReleaseURL:    rel.HTMLURL,
	}
	switch {
	case rel.PublishedAt != nil:
		rec.LastUpdated = rel.PublishedAt
	case repo.UpdatedAt != nil:
		rec.LastUpdated = repo.UpdatedAt
	}
	if rec.DisplayName == "" {
		rec.DisplayName = m.Name
	}
	return rec
}

// extensionDir returns the install directory for id, refusing ids that do
// not map to a direct child of the extensions directory.
func (i *Installer) extensionDir(id string) (string, error) {
	dir := i.paths.ExtensionDir(id)
	if filepath.Dir(dir) != filepath.Clean(i.paths.ExtensionsDir) {
		return "", cerrors.NewPathError(dir, "resolve", cerrors.ErrUnsafePath)
	}
	return dir, nil
}

// UninstallOptions tunes Uninstall
type UninstallOptions struct {
	Purge bool // also forget the registry record
}

// Uninstall removes the extension's files and marks it uninstalled
func (i *Installer) Uninstall(ctx context.Context, id string, opts UninstallOptions) error {
	rec, ok := i.store.Get(id)
	if !ok {
		return cerrors.NewExtensionError(id, "uninstall", cerrors.ErrExtensionNotFound)
	}

	dir, err := i.extensionDir(id)
	if err != nil {
		return cerrors.NewExtensionError(id, "uninstall", err)
	}
	i.unlink(rec.Type, dir)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cerrors.NewExtensionError(id, "uninstall", err)
	}

	if opts.Purge {
		if _, err := i.store.Remove(ctx, id); err != nil {
			return cerrors.NewExtensionError(id, "uninstall", err)
		}
	} else if rec.IsInstalled {
		if err := i.store.Update(ctx, id, func(r *registry.ExtensionRecord) { r.MarkUninstalled() }); err != nil {
			return cerrors.NewExtensionError(id, "uninstall", err)
		}
	}

	i.logger.Info("uninstalled extension", zap.String("id", id), zap.Bool("purge", opts.Purge))
	return nil
}

func (i *Installer) unlink(t registry.ExtensionType, dir string) {
	if i.linker == nil {
		return
	}
	if err := i.linker.Unlink(string(t), dir); err != nil {
		i.logger.Warn("could not unlink extension", zap.String("dir", dir), zap.Error(err))
	}
}

// Update describes an installed extension with a newer upstream release
type Update struct {
	ID        string
	Installed string
	Latest    string
}

// CheckUpdates refreshes upstream metadata for every installed extension,
// in batches, and stores the derived hasUpdate flag.
func (i *Installer) CheckUpdates(ctx context.Context) ([]Update, error) {
	installed := i.store.ListInstalled()
	ids := make([]string, 0, len(installed))
	for _, rec := range installed {
		ids = append(ids, rec.ID)
	}

	latest := make(map[string]github.ExtensionMetadata, len(ids))
	for start := 0; start < len(ids); start += github.MaxBatchSize {
		end := min(start+github.MaxBatchSize, len(ids))
		res, err := i.gh.BatchFetchExtensions(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		if res.Source == github.BatchSourceREST {
			i.logger.Debug("update check used REST fallback", zap.Error(res.FallbackReason))
		}
		for _, md := range res.Records {
			latest[strings.ToLower(md.ID)] = md
		}
	}

	var updates []Update
	for _, rec := range installed {
		md, ok := latest[strings.ToLower(rec.ID)]
		if !ok {
			continue
		}

		current := rec.Version
		if rec.InstalledVersion != nil {
			current = *rec.InstalledVersion
		}
		tag := md.LatestRelease
		if tag == "" {
			// The REST fallback carries no release data.
			tag = i.latestTag(ctx, rec.ID)
		}
		upstream := strings.TrimPrefix(tag, "v")
		hasUpdate := upstream != "" && semver.HasUpdate(current, upstream)
		latestVersion := upstream
		if upstream == "" && rec.HasUpdate {
			hasUpdate, latestVersion = true, rec.Version
		}

		err := i.store.Update(ctx, rec.ID, func(r *registry.ExtensionRecord) {
			r.Stars = md.Stars
			if md.LastUpdated != nil {
				t := md.LastUpdated.UTC().Truncate(time.Second)
				r.LastUpdated = &t
			}
			if upstream != "" {
				r.Version = upstream
				r.HasUpdate = hasUpdate
			}
		})
		if err != nil {
			return updates, err
		}

		if hasUpdate {
			updates = append(updates, Update{ID: rec.ID, Installed: current, Latest: latestVersion})
		}
	}
	return updates, nil
}

// latestTag looks up the latest release tag for id, or "" when it cannot
func (i *Installer) latestTag(ctx context.Context, id string) string {
	owner, repo, ok := strings.Cut(id, "/")
	if !ok {
		return ""
	}
	rel, err := i.gh.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		i.logger.Debug("latest release unavailable", zap.String("id", id), zap.Error(err))
		return ""
	}
	return rel.TagName
}
