package ports

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
)

// Registry is the fetch side of a package registry. Implementations report a
// missing package or version with domain.ErrPackageNotFound and a transient
// failure with domain.ErrRegistryUnavailable.
//
//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type Registry interface {
	// Versions returns the published versions of a package in ascending order.
	Versions(ctx context.Context, id domain.PackageID) ([]domain.Version, error)

	// Manifest returns the manifest of one package version.
	Manifest(ctx context.Context, id domain.PackageID, v domain.Version) (*domain.Manifest, error)

	// Content opens the content archive of one package version together with its digest.
	// The caller must close the reader.
	Content(ctx context.Context, id domain.PackageID, v domain.Version) (io.ReadCloser, digest.Digest, error)

	// Search returns packages whose name or description contains query, latest version only.
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// Publisher is the push side of a package registry.
type Publisher interface {
	// Publish stores a manifest and its content archive and returns the content digest.
	Publish(ctx context.Context, manifest *domain.Manifest, content io.Reader) (digest.Digest, error)
}

// RegistryFactory opens the registry named by a project configuration.
type RegistryFactory interface {
	// Open returns the registry for cfg.Registry.
	Open(cfg domain.ProjectConfig) (RegistryClient, error)
}

// RegistryClient is a registry that can both fetch and publish.
type RegistryClient interface {
	Registry
	Publisher
}
