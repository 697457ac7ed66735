package domain

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"
	"go.trai.ch/zerr"
)

// DefaultComposeFile is the fragment path used when a manifest does not name one.
const DefaultComposeFile = "compose.yaml"

// Manifest describes one published version of a package. It is immutable once fetched.
type Manifest struct {
	ID          PackageID
	Version     Version
	Description string
	Author      string
	License     string
	Homepage    string

	// Dependencies are kept in declaration order and have unique IDs.
	Dependencies []Dependency

	// Digest identifies the content archive of this version.
	Digest digest.Digest

	// Compose locates the Compose fragment inside the content archive.
	Compose ComposeDescriptor

	// Parameters declares the values the package accepts.
	Parameters map[string]Parameter

	// Values are package-provided values that override parameter defaults.
	Values map[string]string
}

// ComposeDescriptor locates the Compose fragment of a package.
type ComposeDescriptor struct {
	File string
}

// Ref renders the manifest as "id@version".
func (m *Manifest) Ref() string {
	return m.ID.String() + "@" + m.Version.String()
}

// Validate enforces the manifest invariants that do not depend on the wire format.
func (m *Manifest) Validate() error {
	if err := m.ID.Validate(); err != nil {
		return m.malformed("name", err.Error())
	}
	seen := make(map[PackageID]struct{}, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		if err := dep.ID.Validate(); err != nil {
			return m.malformed("dependencies", err.Error())
		}
		if dep.ID == m.ID {
			return m.malformed("dependencies", "package depends on itself")
		}
		if _, dup := seen[dep.ID]; dup {
			return zerr.With(m.malformed("dependencies", "duplicate dependency"), "dependency", dep.ID.String())
		}
		seen[dep.ID] = struct{}{}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Parameters)) {
		p := m.Parameters[name]
		if !p.Type.Valid() {
			return zerr.With(m.malformed("parameters", "unknown parameter type"), "parameter", name)
		}
		if p.Default != "" {
			if err := p.Check(name, p.Default); err != nil {
				return zerr.With(m.malformed("parameters", "default does not match type"), "parameter", name)
			}
		}
	}
	if m.Digest != "" {
		if err := m.Digest.Validate(); err != nil {
			return m.malformed("digest", err.Error())
		}
	}
	return nil
}

func (m *Manifest) malformed(field, reason string) error {
	var err error = zerr.Wrap(ErrMalformedManifest, reason)
	err = zerr.With(err, "package", m.ID.String())
	err = zerr.With(err, "version", m.Version.String())
	return zerr.With(err, "field", field)
}

// ComposeFile returns the fragment path, defaulting to compose.yaml.
func (m *Manifest) ComposeFile() string {
	if m.Compose.File == "" {
		return DefaultComposeFile
	}
	return m.Compose.File
}

// ParameterType enumerates the accepted parameter value kinds.
type ParameterType string

const (
	// ParamString accepts any single-line text.
	ParamString ParameterType = "string"
	// ParamNumber accepts integers and decimals.
	ParamNumber ParameterType = "number"
	// ParamBoolean accepts true/false/yes/no/1/0.
	ParamBoolean ParameterType = "boolean"
	// ParamPort accepts a TCP port between 1 and 65535.
	ParamPort ParameterType = "port"
)

// Valid reports whether t is a known type. The empty type means string.
func (t ParameterType) Valid() bool {
	switch t {
	case "", ParamString, ParamNumber, ParamBoolean, ParamPort:
		return true
	default:
		return false
	}
}

// Parameter declares a configurable value of a package.
type Parameter struct {
	Description string
	Type        ParameterType
	Default     string
	Required    bool
}

const maxParameterLength = 1000

var (
	numberPattern  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	booleanPattern = regexp.MustCompile(`^(true|false|yes|no|1|0)$`)
	portPattern    = regexp.MustCompile(`^([1-9]\d{0,3}|[1-5]\d{4}|6[0-4]\d{3}|65[0-4]\d{2}|655[0-2]\d|6553[0-5])$`)
)

// Check validates a value against the parameter's type.
func (p Parameter) Check(name, value string) error {
	invalid := func(reason string) error {
		return zerr.With(zerr.With(zerr.Wrap(ErrInvalidParameter, reason), "parameter", name), "type", string(p.Type))
	}
	if len(value) > maxParameterLength {
		return invalid("value too long")
	}
	if strings.ContainsAny(value, "\x00\r\n") {
		return invalid("value contains control characters")
	}
	switch p.Type {
	case ParamNumber:
		if !numberPattern.MatchString(value) {
			return invalid("must be a number")
		}
	case ParamBoolean:
		if !booleanPattern.MatchString(strings.ToLower(value)) {
			return invalid("must be a boolean")
		}
	case ParamPort:
		if !portPattern.MatchString(value) {
			return invalid("must be a port between 1 and 65535")
		}
	}
	return nil
}

// ResolveValues merges parameter defaults, package values and user overrides,
// in increasing precedence, and validates the result.
func (m *Manifest) ResolveValues(overrides map[string]string) (map[string]string, error) {
	defaults := lo.MapEntries(m.Parameters, func(name string, p Parameter) (string, string) {
		return name, p.Default
	})
	defaults = lo.PickBy(defaults, func(_, v string) bool {
		return v != ""
	})
	values := lo.Assign(defaults, m.Values, overrides)

	for _, name := range slices.Sorted(maps.Keys(m.Parameters)) {
		p := m.Parameters[name]
		v, ok := values[name]
		if p.Required && (!ok || v == "") {
			err := zerr.With(zerr.Wrap(ErrMissingParameter, "required parameter has no value"), "parameter", name)
			return nil, zerr.With(err, "package", m.ID.String())
		}
		if ok && v != "" {
			if err := p.Check(name, v); err != nil {
				return nil, zerr.With(err, "package", m.ID.String())
			}
		}
	}
	return values, nil
}

// SearchResult is one registry search hit.
type SearchResult struct {
	ID          PackageID
	Version     Version
	Description string
	Author      string
}
