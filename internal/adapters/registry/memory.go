package registry

import (
	"bytes"
	"context"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.RegistryClient = (*Memory)(nil)

type release struct {
	manifest *domain.Manifest
	content  []byte
}

// Memory is a registry held in memory. It backs ephemeral servers and tests.
type Memory struct {
	mu       sync.RWMutex
	packages map[domain.PackageID]map[string]release
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{packages: make(map[domain.PackageID]map[string]release)}
}

// Versions lists the versions of id in ascending order.
func (r *Memory) Versions(ctx context.Context, id domain.PackageID) ([]domain.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	releases, ok := r.packages[id]
	if !ok {
		return nil, notFound(id, "")
	}
	out := make([]domain.Version, 0, len(releases))
	for _, rel := range releases {
		out = append(out, rel.manifest.Version)
	}
	slices.SortFunc(out, domain.Version.Compare)
	return out, nil
}

// Manifest returns the manifest of id@v.
func (r *Memory) Manifest(ctx context.Context, id domain.PackageID, v domain.Version) (*domain.Manifest, error) {
	rel, err := r.release(ctx, id, v)
	if err != nil {
		return nil, err
	}
	m := *rel.manifest
	return &m, nil
}

// Content returns the stored archive of id@v.
func (r *Memory) Content(ctx context.Context, id domain.PackageID, v domain.Version) (io.ReadCloser, digest.Digest, error) {
	rel, err := r.release(ctx, id, v)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(rel.content)), digest.FromBytes(rel.content), nil
}

func (r *Memory) release(ctx context.Context, id domain.PackageID, v domain.Version) (release, error) {
	if err := ctx.Err(); err != nil {
		return release{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.packages[id][v.String()]
	if !ok {
		return release{}, notFound(id, v.String())
	}
	return rel, nil
}

// Search matches query against the latest release of every package.
func (r *Memory) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	var out []domain.SearchResult
	for _, id := range slices.Sorted(maps.Keys(r.packages)) {
		releases := r.packages[id]
		versions := make([]domain.Version, 0, len(releases))
		for _, rel := range releases {
			versions = append(versions, rel.manifest.Version)
		}
		slices.SortFunc(versions, domain.Version.Compare)
		m := releases[latest(versions).String()].manifest
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

// Publish stores a release. Publishing an existing version replaces it.
func (r *Memory) Publish(ctx context.Context, m *domain.Manifest, content io.Reader) (digest.Digest, error) {
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

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.packages[m.ID] == nil {
		r.packages[m.ID] = make(map[string]release)
	}
	r.packages[m.ID][m.Version.String()] = release{manifest: &published, content: data}
	return d, nil
}
