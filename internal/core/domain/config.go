package domain

import (
	"runtime"
	"time"
)

// ProjectConfig holds the settings of one Compose project.
type ProjectConfig struct {
	// Root is the absolute project directory.
	Root string

	// Registry is a directory path or an http(s) URL.
	Registry string

	// BaseFile is the user-owned Compose file, relative to Root.
	BaseFile string

	// OverrideFile is the package-managed Compose file, relative to Root.
	OverrideFile string

	// Workers bounds concurrent registry fetches and staging.
	Workers int

	// RegistryTimeout bounds each registry request.
	RegistryTimeout time.Duration

	// RegistryRetries is the retry budget for transient registry failures.
	RegistryRetries int

	// RegistryRate limits registry requests per second. Zero means unlimited.
	RegistryRate float64
}

// DefaultProjectConfig returns the configuration used when compak.yaml is absent.
func DefaultProjectConfig(root string) ProjectConfig {
	return ProjectConfig{
		Root:            root,
		Registry:        DefaultRegistryPath(),
		BaseFile:        DefaultBaseFile,
		OverrideFile:    DefaultOverrideFile,
		Workers:         runtime.NumCPU(),
		RegistryTimeout: 30 * time.Second,
		RegistryRetries: 4,
	}
}
