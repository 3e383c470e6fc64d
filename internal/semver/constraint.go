package semver

import (
	"fmt"
	"strings"
)

// Op enumerates the comparison operators a Constraint may carry.
type Op string

const (
	Any        Op = ""
	Eq         Op = "=="
	Ne         Op = "!="
	Gt         Op = ">"
	Ge         Op = ">="
	Lt         Op = "<"
	Le         Op = "<="
	Compatible Op = "~>"
)

// Constraint is a single (comparison, version) pair. A Dependency or
// Conflict carries a list of these; an empty list means Any.
type Constraint struct {
	Op      Op
	Version Version
}

// Satisfies reports whether v satisfies all of cs (an empty slice means
// Any and is always satisfied).
func Satisfies(cs []Constraint, v Version) bool {
	for _, c := range cs {
		if !c.Satisfies(v) {
			return false
		}
	}
	return true
}

// Satisfies reports whether v satisfies this single constraint. Compatible
// expands per the semver-standard "caret" rule given in the data model:
// it holds the leftmost nonzero component of the declared version fixed
// and lets the components to its right float, up to but excluding the
// next value of that component.
func (c Constraint) Satisfies(v Version) bool {
	switch c.Op {
	case Any:
		return true
	case Eq:
		return v.Equal(c.Version)
	case Ne:
		return !v.Equal(c.Version)
	case Gt:
		return v.GreaterThan(c.Version)
	case Ge:
		return v.Compare(c.Version) >= 0
	case Lt:
		return v.LessThan(c.Version)
	case Le:
		return v.Compare(c.Version) <= 0
	case Compatible:
		upper := compatibleUpperBound(c.Version)
		return v.Compare(c.Version) >= 0 && v.LessThan(upper)
	default:
		return false
	}
}

// compatibleUpperBound implements the redefined Compatible upper bound:
//
//	major > 0: next major
//	major == 0, minor > 0: next minor
//	major == 0, minor == 0: next patch
func compatibleUpperBound(v Version) Version {
	switch {
	case v.Major > 0:
		return Version{Major: v.Major + 1}
	case v.Minor > 0:
		return Version{Minor: v.Minor + 1}
	default:
		return Version{Patch: v.Patch + 1}
	}
}

// ParseConstraint reads the short textual form "<op><version>", where op
// is one of {==, !=, >, >=, <, <=, ~>} and the empty string means Any.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{Op: Any}, nil
	}
	for _, op := range []Op{Ge, Le, Eq, Ne, Compatible, Gt, Lt} {
		// Two-character operators must be tried before their
		// one-character prefixes (">=" before ">").
		if strings.HasPrefix(s, string(op)) {
			rest := strings.TrimSpace(strings.TrimPrefix(s, string(op)))
			v, err := Parse(rest)
			if err != nil {
				return Constraint{}, fmt.Errorf("semver: invalid constraint %q: %w", s, err)
			}
			return Constraint{Op: op, Version: v}, nil
		}
	}
	return Constraint{}, fmt.Errorf("semver: invalid constraint %q: unrecognized operator", s)
}

// ParseConstraints parses a declared dependency/conflict constraint list;
// nil/empty input yields the empty (Any) slice.
func ParseConstraints(ss []string) ([]Constraint, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]Constraint, 0, len(ss))
	for _, s := range ss {
		c, err := ParseConstraint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// String renders the constraint back to its textual form; parse(print(c))
// == c for every constructible c.
func (c Constraint) String() string {
	if c.Op == Any {
		return ""
	}
	return string(c.Op) + c.Version.String()
}

// PrintConstraints renders a constraint list back to its wire form.
func PrintConstraints(cs []Constraint) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
