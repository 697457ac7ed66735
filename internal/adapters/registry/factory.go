package registry

import (
	"strings"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
)

var _ ports.RegistryFactory = (*Factory)(nil)

// Factory opens the registry named in a project configuration.
type Factory struct {
	archiver ports.Archiver
}

// NewFactory creates a new Factory.
func NewFactory(archiver ports.Archiver) *Factory {
	return &Factory{archiver: archiver}
}

// Open returns an HTTP client for http(s) URLs and a filesystem registry
// otherwise, wrapped in a per-command cache.
func (f *Factory) Open(cfg domain.ProjectConfig) (ports.RegistryClient, error) {
	if strings.HasPrefix(cfg.Registry, "http://") || strings.HasPrefix(cfg.Registry, "https://") {
		client, err := NewHTTP(cfg.Registry, HTTPOptions{
			Timeout: cfg.RegistryTimeout,
			Retries: cfg.RegistryRetries,
			Rate:    cfg.RegistryRate,
		})
		if err != nil {
			return nil, err
		}
		return NewCached(client), nil
	}
	return NewCached(NewFilesystem(cfg.Registry, f.archiver)), nil
}
