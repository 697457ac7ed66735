package ports

import "go.trai.ch/compak/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// FindRoot returns the project root enclosing cwd.
	FindRoot(cwd string) (string, error)

	// Load reads compak.yaml from the given project root, falling back to defaults.
	Load(root string) (domain.ProjectConfig, error)
}
