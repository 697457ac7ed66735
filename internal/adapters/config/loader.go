// Package config provides the project configuration loader for compak.
package config

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// EnvRegistry overrides the configured registry.
	EnvRegistry = "COMPAK_REGISTRY"
	// EnvWorkers overrides the configured worker count.
	EnvWorkers = "COMPAK_WORKERS"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Loader implements ports.ConfigLoader using compak.yaml.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// FindRoot walks up from cwd to the nearest directory holding compak.yaml or
// compak.lock. Without one, cwd itself is the project root.
func (l *Loader) FindRoot(cwd string) (string, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to resolve project directory"), "path", cwd)
	}
	for dir := abs; ; {
		for _, name := range []string{domain.ConfigFileName, domain.LockFileName} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// Load reads compak.yaml below root, applies environment overrides and fills
// in defaults. A missing file yields the defaults.
func (l *Loader) Load(root string) (domain.ProjectConfig, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return domain.ProjectConfig{}, zerr.With(zerr.Wrap(err, "failed to resolve project directory"), "path", root)
	}
	cfg := domain.DefaultProjectConfig(abs)

	path := filepath.Join(abs, domain.ConfigFileName)
	//nolint:gosec // Path is the project configuration
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := l.apply(&cfg, data); err != nil {
			return domain.ProjectConfig{}, zerr.With(err, "path", path)
		}
	case errors.Is(err, iofs.ErrNotExist):
	default:
		return domain.ProjectConfig{}, zerr.With(zerr.Wrap(err, "failed to read config file"), "path", path)
	}

	if err := l.applyEnv(&cfg); err != nil {
		return domain.ProjectConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) apply(cfg *domain.ProjectConfig, data []byte) error {
	var file Projectfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(domain.ErrInvalidConfig, zerr.Wrap(err, "failed to parse config file"))
	}
	if err := validate.Struct(&file); err != nil {
		return errors.Join(domain.ErrInvalidConfig, err)
	}

	if file.Registry != "" {
		cfg.Registry = ResolveRegistry(cfg.Root, file.Registry)
	}
	if file.Compose.Base != "" {
		cfg.BaseFile = file.Compose.Base
	}
	if file.Compose.Override != "" {
		cfg.OverrideFile = file.Compose.Override
	}
	if cfg.BaseFile == cfg.OverrideFile {
		return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "override file must differ from the base file"), "file", cfg.OverrideFile)
	}
	for _, f := range []string{cfg.BaseFile, cfg.OverrideFile} {
		if !filepath.IsLocal(f) {
			return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "compose file must stay inside the project"), "file", f)
		}
	}
	if file.Workers > 0 {
		cfg.Workers = file.Workers
	}
	if file.Timeout != "" {
		d, err := time.ParseDuration(file.Timeout)
		if err != nil || d <= 0 {
			return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "registry_timeout must be a positive duration"), "value", file.Timeout)
		}
		cfg.RegistryTimeout = d
	}
	if file.Retries != nil {
		cfg.RegistryRetries = *file.Retries
	}
	cfg.RegistryRate = file.Rate
	return nil
}

func (l *Loader) applyEnv(cfg *domain.ProjectConfig) error {
	if v := strings.TrimSpace(os.Getenv(EnvRegistry)); v != "" {
		if l.Logger != nil && cfg.Registry != domain.DefaultRegistryPath() {
			l.Logger.Warn(EnvRegistry + " overrides the registry of " + domain.ConfigFileName)
		}
		cfg.Registry = ResolveRegistry(cfg.Root, v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "workers must be a positive integer"), "env", EnvWorkers)
		}
		cfg.Workers = n
	}
	return nil
}

// ResolveRegistry keeps URLs as they are and anchors relative paths at root.
func ResolveRegistry(root, registry string) string {
	if IsRemote(registry) || filepath.IsAbs(registry) {
		return registry
	}
	if strings.HasPrefix(registry, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, registry[2:])
		}
	}
	return filepath.Join(root, registry)
}

// IsRemote reports whether registry is an http(s) URL.
func IsRemote(registry string) bool {
	return strings.HasPrefix(registry, "http://") || strings.HasPrefix(registry, "https://")
}
