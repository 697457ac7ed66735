package domain

import (
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
	"golang.org/x/mod/semver"
)

// Version is a semantic version. Build metadata is not retained because it
// does not take part in ordering.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
}

// ParseVersion parses "1.2.3", "v1.2.3" or "1.2.3-rc.1".
// Partial versions such as "1.2" are rejected.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	v := "v" + strings.TrimPrefix(raw, "v")
	core, _, _ := strings.Cut(v, "+")
	if !semver.IsValid(v) || semver.Canonical(v) != core {
		return Version{}, invalidVersion(s)
	}

	pre := strings.TrimPrefix(semver.Prerelease(core), "-")
	nums := strings.SplitN(strings.TrimPrefix(strings.TrimSuffix(core, semver.Prerelease(core)), "v"), ".", 3)

	var out Version
	var err error
	if out.Major, err = strconv.ParseUint(nums[0], 10, 64); err != nil {
		return Version{}, invalidVersion(s)
	}
	if out.Minor, err = strconv.ParseUint(nums[1], 10, 64); err != nil {
		return Version{}, invalidVersion(s)
	}
	if out.Patch, err = strconv.ParseUint(nums[2], 10, 64); err != nil {
		return Version{}, invalidVersion(s)
	}
	out.Prerelease = pre
	return out, nil
}

func invalidVersion(s string) error {
	return zerr.With(zerr.Wrap(ErrInvalidVersion, "not a semantic version"), "version", s)
}

// MustParseVersion is ParseVersion for literals known to be valid.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version without a leading "v".
func (v Version) String() string {
	s := strconv.FormatUint(v.Major, 10) + "." + strconv.FormatUint(v.Minor, 10) + "." + strconv.FormatUint(v.Patch, 10)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// canonical returns the form understood by golang.org/x/mod/semver.
func (v Version) canonical() string {
	return "v" + v.String()
}

// Compare returns -1, 0 or +1 following semantic version precedence.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical(), o.canonical())
}

// Equal reports whether both versions have the same precedence.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// IsPrerelease reports whether the version carries a pre-release tag.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// sameCore reports whether both versions share major, minor and patch.
func (v Version) sameCore(o Version) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SortVersionsDesc sorts versions from highest to lowest in place.
func SortVersionsDesc(vs []Version) {
	slices.SortFunc(vs, func(a, b Version) int { return b.Compare(a) })
}
