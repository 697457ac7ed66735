package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

type operator uint8

const (
	opEQ operator = iota
	opNE
	opGT
	opGE
	opLT
	opLE
)

func (o operator) String() string {
	switch o {
	case opNE:
		return "!="
	case opGT:
		return ">"
	case opGE:
		return ">="
	case opLT:
		return "<"
	case opLE:
		return "<="
	default:
		return "="
	}
}

type comparator struct {
	op      operator
	version Version
}

func (c comparator) matches(v Version) bool {
	cmp := v.Compare(c.version)
	switch c.op {
	case opNE:
		return cmp != 0
	case opGT:
		return cmp > 0
	case opGE:
		return cmp >= 0
	case opLT:
		return cmp < 0
	case opLE:
		return cmp <= 0
	default:
		return cmp == 0
	}
}

// Constraint is a predicate over versions: a disjunction ("||") of
// conjunctions of comparators. The zero value matches any release version.
type Constraint struct {
	raw  string
	sets [][]comparator
}

// AnyVersion returns the constraint that accepts every release version.
func AnyVersion() Constraint {
	return Constraint{raw: "*", sets: [][]comparator{{}}}
}

// ExactVersion returns a constraint pinned to v.
func ExactVersion(v Version) Constraint {
	return Constraint{raw: v.String(), sets: [][]comparator{{{op: opEQ, version: v}}}}
}

// ParseConstraint parses the constraint grammar: exact versions, comparisons,
// caret and tilde ranges, wildcards, "," or space separated conjunctions and
// "||" separated alternatives.
func ParseConstraint(s string) (Constraint, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "*" || raw == "x" || raw == "X" {
		return AnyVersion(), nil
	}

	c := Constraint{raw: raw}
	for _, alt := range strings.Split(raw, "||") {
		set, err := parseConjunction(alt)
		if err != nil {
			return Constraint{}, zerr.With(err, "constraint", raw)
		}
		c.sets = append(c.sets, set)
	}
	return c, nil
}

// MustParseConstraint is ParseConstraint for literals known to be valid.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Matches reports whether v satisfies the constraint. A pre-release version
// only matches a conjunction that names a pre-release of the same core version.
func (c Constraint) Matches(v Version) bool {
	if c.sets == nil {
		return !v.IsPrerelease()
	}
	for _, set := range c.sets {
		if matchesSet(set, v) {
			return true
		}
	}
	return false
}

func matchesSet(set []comparator, v Version) bool {
	for _, cmp := range set {
		if !cmp.matches(v) {
			return false
		}
	}
	if !v.IsPrerelease() {
		return true
	}
	for _, cmp := range set {
		if cmp.version.IsPrerelease() && cmp.version.sameCore(v) {
			return true
		}
	}
	return false
}

// String returns the constraint as written, or "*" for the zero value.
func (c Constraint) String() string {
	if c.raw == "" {
		return "*"
	}
	return c.raw
}

// IsAny reports whether the constraint places no bound on release versions.
func (c Constraint) IsAny() bool {
	return c.sets == nil || (len(c.sets) == 1 && len(c.sets[0]) == 0)
}

// MarshalText implements encoding.TextMarshaler.
func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Constraint) UnmarshalText(text []byte) error {
	parsed, err := ParseConstraint(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseConjunction(s string) ([]comparator, error) {
	tokens := tokenize(s)
	if len(tokens) == 0 {
		return nil, zerr.Wrap(ErrInvalidConstraint, "empty alternative")
	}
	set := []comparator{}
	for _, tok := range tokens {
		cmps, err := parseTerm(tok)
		if err != nil {
			return nil, err
		}
		set = append(set, cmps...)
	}
	return set, nil
}

// tokenize splits on commas and whitespace and re-attaches a bare operator
// to the version that follows it, so ">= 1.0.0" reads as ">=1.0.0".
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var out []string
	pending := ""
	for _, f := range fields {
		if strings.Trim(f, "<>=!^~") == "" {
			pending += f
			continue
		}
		out = append(out, pending+f)
		pending = ""
	}
	if pending != "" {
		out = append(out, pending)
	}
	return out
}

// partial is a possibly incomplete version such as "1", "1.2" or "1.x".
type partial struct {
	nums [3]uint64
	n    int
	pre  string
}

func (p partial) floor() Version {
	return Version{Major: p.nums[0], Minor: p.nums[1], Patch: p.nums[2], Prerelease: p.pre}
}

func parsePartial(s string) (partial, error) {
	var p partial
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return p, zerr.Wrap(ErrInvalidConstraint, "missing version")
	}
	core, pre, hasPre := strings.Cut(s, "-")
	core, _, _ = strings.Cut(core, "+")
	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		return p, zerr.With(zerr.Wrap(ErrInvalidConstraint, "too many version components"), "version", s)
	}
	for i, part := range parts {
		if part == "x" || part == "X" || part == "*" {
			if i+1 != len(parts) && !allWildcards(parts[i+1:]) {
				return p, zerr.With(zerr.Wrap(ErrInvalidConstraint, "wildcard must be trailing"), "version", s)
			}
			break
		}
		num, err := strconv.ParseUint(part, 10, 64)
		if err != nil || (len(part) > 1 && part[0] == '0') {
			return p, zerr.With(zerr.Wrap(ErrInvalidConstraint, "bad version number"), "version", s)
		}
		p.nums[i] = num
		p.n = i + 1
	}
	if hasPre {
		if p.n != 3 || pre == "" {
			return p, zerr.With(zerr.Wrap(ErrInvalidConstraint, "pre-release needs a full version"), "version", s)
		}
		if _, err := ParseVersion(core + "-" + pre); err != nil {
			return p, zerr.With(zerr.Wrap(ErrInvalidConstraint, "bad pre-release"), "version", s)
		}
		p.pre = pre
	}
	return p, nil
}

func allWildcards(parts []string) bool {
	for _, part := range parts {
		if part != "x" && part != "X" && part != "*" {
			return false
		}
	}
	return true
}

func parseTerm(tok string) ([]comparator, error) {
	opText := tok[:len(tok)-len(strings.TrimLeft(tok, "<>=!^~"))]
	p, err := parsePartial(tok[len(opText):])
	if err != nil {
		return nil, err
	}
	low := p.floor()

	switch opText {
	case "", "=":
		switch p.n {
		case 3:
			return []comparator{{opEQ, low}}, nil
		case 0:
			return nil, nil
		default:
			return []comparator{{opGE, low}, {opLT, bumpAt(p, p.n-1)}}, nil
		}
	case "^":
		if p.n == 0 {
			return nil, nil
		}
		var hi Version
		switch {
		case p.nums[0] > 0 || p.n == 1:
			hi = bumpAt(p, 0)
		case p.nums[1] > 0 || p.n == 2:
			hi = bumpAt(p, 1)
		default:
			hi = bumpAt(p, 2)
		}
		return []comparator{{opGE, low}, {opLT, hi}}, nil
	case "~":
		if p.n == 0 {
			return nil, nil
		}
		hi := bumpAt(p, 0)
		if p.n >= 2 {
			hi = bumpAt(p, 1)
		}
		return []comparator{{opGE, low}, {opLT, hi}}, nil
	case ">":
		switch p.n {
		case 3:
			return []comparator{{opGT, low}}, nil
		case 0:
			return nil, zerr.With(zerr.Wrap(ErrInvalidConstraint, "nothing is greater than a wildcard"), "term", tok)
		default:
			return []comparator{{opGE, bumpAt(p, p.n-1)}}, nil
		}
	case ">=":
		return []comparator{{opGE, low}}, nil
	case "<":
		if p.n == 0 {
			return nil, zerr.With(zerr.Wrap(ErrInvalidConstraint, "nothing is less than a wildcard"), "term", tok)
		}
		return []comparator{{opLT, low}}, nil
	case "<=":
		switch p.n {
		case 3:
			return []comparator{{opLE, low}}, nil
		case 0:
			return nil, nil
		default:
			return []comparator{{opLT, bumpAt(p, p.n-1)}}, nil
		}
	case "!=":
		if p.n != 3 {
			return nil, zerr.With(zerr.Wrap(ErrInvalidConstraint, "!= needs a full version"), "term", tok)
		}
		return []comparator{{opNE, low}}, nil
	default:
		return nil, zerr.With(zerr.Wrap(ErrInvalidConstraint, "unknown operator"), "term", tok)
	}
}

// bumpAt increments component i and zeroes the ones after it.
func bumpAt(p partial, i int) Version {
	v := Version{Major: p.nums[0], Minor: p.nums[1], Patch: p.nums[2]}
	switch i {
	case 0:
		return Version{Major: v.Major + 1}
	case 1:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}
