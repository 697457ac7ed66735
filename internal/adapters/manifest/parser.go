// Package manifest reads and writes package manifests in their YAML form.
package manifest

import (
	"bytes"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// File is the YAML document of a manifest.
type File struct {
	Name         string                  `yaml:"name" validate:"required,max=100"`
	Version      string                  `yaml:"version" validate:"required"`
	Description  string                  `yaml:"description,omitempty" validate:"max=500"`
	Author       string                  `yaml:"author,omitempty"`
	License      string                  `yaml:"license,omitempty"`
	Homepage     string                  `yaml:"homepage,omitempty" validate:"omitempty,url"`
	Digest       string                  `yaml:"digest,omitempty"`
	Compose      string                  `yaml:"compose,omitempty" validate:"omitempty,max=255"`
	Dependencies yaml.Node               `yaml:"dependencies,omitempty" validate:"-"`
	Parameters   map[string]ParameterDTO `yaml:"parameters,omitempty" validate:"dive"`
	Values       map[string]string       `yaml:"values,omitempty"`
}

// ParameterDTO is the YAML form of a package parameter.
type ParameterDTO struct {
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type,omitempty" validate:"omitempty,oneof=string number boolean port"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// dependencyDTO is one entry of the list form of dependencies.
type dependencyDTO struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a manifest. Every failure is reported as
// domain.ErrMalformedManifest with package, version and field metadata.
func Parse(raw []byte) (*domain.Manifest, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, malformed(f.Name, f.Version, "document", err.Error())
	}

	if err := validate.Struct(&f); err != nil {
		field := "document"
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field = verrs[0].Namespace()
		}
		return nil, malformed(f.Name, f.Version, field, err.Error())
	}

	m := &domain.Manifest{
		ID:          domain.PackageID(f.Name),
		Description: f.Description,
		Author:      f.Author,
		License:     f.License,
		Homepage:    f.Homepage,
		Compose:     domain.ComposeDescriptor{File: f.Compose},
		Values:      f.Values,
	}

	v, err := domain.ParseVersion(f.Version)
	if err != nil {
		return nil, malformed(f.Name, f.Version, "version", err.Error())
	}
	m.Version = v

	if f.Digest != "" {
		d, err := digest.Parse(f.Digest)
		if err != nil {
			return nil, malformed(f.Name, f.Version, "digest", err.Error())
		}
		m.Digest = d
	}

	deps, err := parseDependencies(&f.Dependencies)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "package", f.Name), "version", f.Version)
	}
	m.Dependencies = deps

	if len(f.Parameters) > 0 {
		m.Parameters = make(map[string]domain.Parameter, len(f.Parameters))
		for name, p := range f.Parameters {
			m.Parameters[name] = domain.Parameter{
				Description: p.Description,
				Type:        domain.ParameterType(p.Type),
				Default:     p.Default,
				Required:    p.Required,
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseDependencies accepts either a mapping of name to constraint or a list
// of {name, version} entries or "name@constraint" strings. Declaration order
// is kept and a name may appear only once.
func parseDependencies(node *yaml.Node) ([]domain.Dependency, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil, nil
	}

	var deps []domain.Dependency
	seen := make(map[string]struct{})
	add := func(name, constraint string) error {
		if _, dup := seen[name]; dup {
			return zerr.With(depError("duplicate dependency"), "dependency", name)
		}
		seen[name] = struct{}{}
		id := domain.PackageID(name)
		if err := id.Validate(); err != nil {
			return zerr.With(depError(err.Error()), "dependency", name)
		}
		c, err := domain.ParseConstraint(constraint)
		if err != nil {
			return zerr.With(depError(err.Error()), "dependency", name)
		}
		deps = append(deps, domain.Dependency{ID: id, Constraint: c})
		return nil
	}

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return nil, zerr.With(depError("constraint must be a string"), "dependency", key.Value)
			}
			constraint := val.Value
			if val.Tag == "!!null" {
				constraint = ""
			}
			if err := add(key.Value, constraint); err != nil {
				return nil, err
			}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				dep, err := domain.ParseDependency(item.Value)
				if err != nil {
					return nil, zerr.With(depError(err.Error()), "dependency", item.Value)
				}
				if err := add(dep.ID.String(), dep.Constraint.String()); err != nil {
					return nil, err
				}
				continue
			}
			var dto dependencyDTO
			if err := item.Decode(&dto); err != nil {
				return nil, depError(err.Error())
			}
			if err := add(dto.Name, dto.Version); err != nil {
				return nil, err
			}
		}
	default:
		return nil, depError("dependencies must be a mapping or a list")
	}
	return deps, nil
}

func depError(reason string) error {
	return zerr.With(zerr.Wrap(domain.ErrMalformedManifest, reason), "field", "dependencies")
}

func malformed(name, version, field, reason string) error {
	var err error = zerr.Wrap(domain.ErrMalformedManifest, reason)
	err = zerr.With(err, "package", name)
	err = zerr.With(err, "version", version)
	return zerr.With(err, "field", field)
}

// Marshal renders a manifest as YAML with dependencies in mapping form.
func Marshal(m *domain.Manifest) ([]byte, error) {
	f := File{
		Name:        m.ID.String(),
		Version:     m.Version.String(),
		Description: m.Description,
		Author:      m.Author,
		License:     m.License,
		Homepage:    m.Homepage,
		Digest:      m.Digest.String(),
		Compose:     m.Compose.File,
		Values:      m.Values,
	}
	if len(m.Dependencies) > 0 {
		f.Dependencies = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, dep := range m.Dependencies {
			f.Dependencies.Content = append(f.Dependencies.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: dep.ID.String()},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: dep.Constraint.String()},
			)
		}
	}
	if len(m.Parameters) > 0 {
		f.Parameters = make(map[string]ParameterDTO, len(m.Parameters))
		for name, p := range m.Parameters {
			f.Parameters[name] = ParameterDTO{
				Description: p.Description,
				Type:        string(p.Type),
				Default:     p.Default,
				Required:    p.Required,
			}
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to encode manifest"), "package", m.ID.String())
	}
	if err := enc.Close(); err != nil {
		return nil, zerr.Wrap(err, "failed to flush manifest")
	}
	return buf.Bytes(), nil
}
