package registry

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

var _ ports.RegistryClient = (*Cached)(nil)

// Cached memoizes version lists and manifests for the lifetime of one
// command. Concurrent identical fetches share a single request.
type Cached struct {
	next ports.RegistryClient

	group     singleflight.Group
	mu        sync.RWMutex
	versions  map[domain.PackageID][]domain.Version
	manifests map[string]*domain.Manifest
}

// NewCached wraps next.
func NewCached(next ports.RegistryClient) *Cached {
	return &Cached{
		next:      next,
		versions:  make(map[domain.PackageID][]domain.Version),
		manifests: make(map[string]*domain.Manifest),
	}
}

// Versions returns the cached version list of id, fetching it once.
func (c *Cached) Versions(ctx context.Context, id domain.PackageID) ([]domain.Version, error) {
	c.mu.RLock()
	vs, ok := c.versions[id]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(vs), nil
	}

	res, err, _ := c.group.Do("versions:"+id.String(), func() (any, error) {
		vs, err := c.next.Versions(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.versions[id] = vs
		c.mu.Unlock()
		return vs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(res.([]domain.Version)), nil
}

// Manifest returns the cached manifest of id@v, fetching it once.
func (c *Cached) Manifest(ctx context.Context, id domain.PackageID, v domain.Version) (*domain.Manifest, error) {
	key := id.String() + "@" + v.String()
	c.mu.RLock()
	m, ok := c.manifests[key]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	res, err, _ := c.group.Do("manifest:"+key, func() (any, error) {
		m, err := c.next.Manifest(ctx, id, v)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.manifests[key] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Manifest), nil
}

// Content is never cached.
func (c *Cached) Content(ctx context.Context, id domain.PackageID, v domain.Version) (io.ReadCloser, digest.Digest, error) {
	return c.next.Content(ctx, id, v)
}

// Search is never cached.
func (c *Cached) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	return c.next.Search(ctx, query, limit)
}

// Publish forwards to the wrapped registry and drops the affected entries.
func (c *Cached) Publish(ctx context.Context, m *domain.Manifest, content io.Reader) (digest.Digest, error) {
	d, err := c.next.Publish(ctx, m, content)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	delete(c.versions, m.ID)
	delete(c.manifests, m.Ref())
	c.mu.Unlock()
	return d, nil
}
