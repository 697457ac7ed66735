// Package registry implements package registries: a directory tree, an HTTP
// client and server for it, and a caching decorator.
package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	compakfs "go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/adapters/manifest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// ContentArchiveName is the packed content of a version.
	ContentArchiveName = "content.tar.gz"
	// ContentDirName is unpacked content, archived on demand.
	ContentDirName = "content"
)

var _ ports.RegistryClient = (*Filesystem)(nil)

// Filesystem serves packages from <root>/<id>/<version>/.
type Filesystem struct {
	root     string
	archiver ports.Archiver
}

// NewFilesystem creates a registry rooted at root.
func NewFilesystem(root string, archiver ports.Archiver) *Filesystem {
	return &Filesystem{root: filepath.Clean(root), archiver: archiver}
}

func (r *Filesystem) versionDir(id domain.PackageID, v domain.Version) string {
	return filepath.Join(r.root, id.String(), v.String())
}

// Versions lists the versions of id in ascending order.
func (r *Filesystem) Versions(ctx context.Context, id domain.PackageID) ([]domain.Version, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(r.root, id.String()))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, notFound(id, "")
		}
		return nil, unavailable(err, id)
	}

	var out []domain.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := domain.ParseVersion(e.Name())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, notFound(id, "")
	}
	slices.SortFunc(out, domain.Version.Compare)
	return out, nil
}

// Manifest reads and parses the manifest of id@v.
func (r *Filesystem) Manifest(ctx context.Context, id domain.PackageID, v domain.Version) (*domain.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(r.versionDir(id, v), domain.ManifestFileName)
	//nolint:gosec // Path is built from validated ids
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, notFound(id, v.String())
		}
		return nil, unavailable(err, id)
	}

	m, err := manifest.Parse(data)
	if err != nil {
		return nil, err
	}
	if m.ID != id || !m.Version.Equal(v) {
		mismatch := zerr.With(zerr.Wrap(domain.ErrRegistryError, "manifest does not match its location"), "package", id.String())
		return nil, zerr.With(mismatch, "version", v.String())
	}
	return m, nil
}

// Content returns the content archive of id@v and its digest. A content
// directory is packed deterministically so its digest is stable.
func (r *Filesystem) Content(ctx context.Context, id domain.PackageID, v domain.Version) (io.ReadCloser, digest.Digest, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	dir := r.versionDir(id, v)

	//nolint:gosec // Path is built from validated ids
	data, err := os.ReadFile(filepath.Join(dir, ContentArchiveName))
	switch {
	case err == nil:
	case errors.Is(err, iofs.ErrNotExist):
		contentDir := filepath.Join(dir, ContentDirName)
		if ok, statErr := compakfs.Exists(contentDir); statErr != nil || !ok {
			return nil, "", notFound(id, v.String())
		}
		var buf bytes.Buffer
		if err := r.archiver.Pack(contentDir, &buf); err != nil {
			return nil, "", zerr.With(errors.Join(domain.ErrRegistryError, err), "package", id.String())
		}
		data = buf.Bytes()
	default:
		return nil, "", unavailable(err, id)
	}

	return io.NopCloser(bytes.NewReader(data)), digest.FromBytes(data), nil
}

// Search scans every package and matches query against the name and the
// description of its latest release.
func (r *Filesystem) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(errors.Join(domain.ErrRegistryUnavailable, err), "path", r.root)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var out []domain.SearchResult
	for _, e := range entries {
		if !e.IsDir() || domain.PackageID(e.Name()).Validate() != nil {
			continue
		}
		id := domain.PackageID(e.Name())
		versions, err := r.Versions(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrPackageNotFound) {
				continue
			}
			return nil, err
		}
		m, err := r.Manifest(ctx, id, latest(versions))
		if err != nil {
			continue
		}
		if !matches(m, query) {
			continue
		}
		out = append(out, domain.SearchResult{ID: m.ID, Version: m.Version, Description: m.Description, Author: m.Author})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Publish stores the archive and the manifest of a version. The manifest is
// written last so a reader never sees a manifest without its content.
func (r *Filesystem) Publish(ctx context.Context, m *domain.Manifest, content io.Reader) (digest.Digest, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", zerr.Wrap(err, "failed to read package content")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d := digest.FromBytes(data)
	if m.Digest != "" && m.Digest != d {
		mismatch := zerr.With(zerr.Wrap(domain.ErrDigestMismatch, "content does not match the manifest digest"), "package", m.ID.String())
		return "", zerr.With(mismatch, "digest", m.Digest.String())
	}

	published := *m
	published.Digest = d
	raw, err := manifest.Marshal(&published)
	if err != nil {
		return "", err
	}

	dir := r.versionDir(m.ID, m.Version)
	if err := compakfs.WriteFileAtomic(filepath.Join(dir, ContentArchiveName), data, domain.FilePerm); err != nil {
		return "", zerr.With(err, "package", m.Ref())
	}
	if err := compakfs.WriteFileAtomic(filepath.Join(dir, domain.ManifestFileName), raw, domain.FilePerm); err != nil {
		return "", zerr.With(err, "package", m.Ref())
	}
	return d, nil
}

func latest(versions []domain.Version) domain.Version {
	best := versions[len(versions)-1]
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].IsPrerelease() {
			return versions[i]
		}
	}
	return best
}

func matches(m *domain.Manifest, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.ID.String()), query) ||
		strings.Contains(strings.ToLower(m.Description), query)
}

func notFound(id domain.PackageID, version string) error {
	var err error = zerr.With(zerr.Wrap(domain.ErrPackageNotFound, "no such package in registry"), "package", id.String())
	if version != "" {
		err = zerr.With(err, "version", version)
	}
	return err
}

func unavailable(cause error, id domain.PackageID) error {
	return zerr.With(errors.Join(domain.ErrRegistryUnavailable, cause), "package", id.String())
}
