package domain

import (
	"strings"
	"unicode"

	"go.trai.ch/zerr"
)

// maxPackageIDLength bounds identifiers so they stay usable as directory names.
const maxPackageIDLength = 100

// PackageID identifies a package within a registry.
type PackageID string

// String returns the identifier as a plain string.
func (id PackageID) String() string {
	return string(id)
}

// Validate checks that the identifier can be used as a key and as a path segment.
func (id PackageID) Validate() error {
	s := string(id)
	switch {
	case s == "":
		return zerr.With(zerr.Wrap(ErrInvalidPackageID, "package id is empty"), "package", s)
	case len(s) > maxPackageIDLength:
		return zerr.With(zerr.Wrap(ErrInvalidPackageID, "package id is too long"), "package", s)
	case strings.ContainsAny(s, `/\`) || strings.Contains(s, ".."):
		return zerr.With(zerr.Wrap(ErrInvalidPackageID, "package id contains a path separator"), "package", s)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '@' {
			return zerr.With(zerr.Wrap(ErrInvalidPackageID, "package id contains a forbidden character"), "package", s)
		}
	}
	return nil
}

// Dependency is a declared edge from a manifest to another package.
type Dependency struct {
	// ID is the package being depended on.
	ID PackageID

	// Constraint restricts the acceptable versions of ID.
	Constraint Constraint
}

// String renders the dependency as "id@constraint".
func (d Dependency) String() string {
	return d.ID.String() + "@" + d.Constraint.String()
}

// ParseDependency parses "id" or "id@constraint" as typed on the command line.
// A missing constraint means any release version.
func ParseDependency(s string) (Dependency, error) {
	name, raw, _ := strings.Cut(strings.TrimSpace(s), "@")
	id := PackageID(name)
	if err := id.Validate(); err != nil {
		return Dependency{}, err
	}
	c, err := ParseConstraint(raw)
	if err != nil {
		return Dependency{}, zerr.With(err, "package", name)
	}
	return Dependency{ID: id, Constraint: c}, nil
}

// Request records a package the user asked for explicitly, with the original
// constraint and parameter overrides. Requests are what update re-resolves from.
type Request struct {
	ID         PackageID
	Constraint Constraint
	Values     map[string]string
}

// Dependency returns the request as a dependency edge from the user.
func (r Request) Dependency() Dependency {
	return Dependency{ID: r.ID, Constraint: r.Constraint}
}
