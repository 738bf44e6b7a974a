package plugin

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	bulkheaderrors "github.com/alexisbeaulieu97/bulkhead/pkg/errors"
)

// VersionSeparator splits a manual bundle reference into name and version.
const VersionSeparator = "@"

// Reference is a parsed manual lookup of the form name@version, where version
// is either an exact semantic version or a constraint such as "1.x" or "^1.2".
type Reference struct {
	Name    string
	Version string

	exact      *semver.Version
	constraint *semver.Constraints
}

// ParseReference validates and parses ref. It never touches the registry, so a
// malformed reference fails before any lookup side effects.
func ParseReference(ref string) (Reference, error) {
	trimmed := strings.TrimSpace(ref)
	idx := strings.LastIndex(trimmed, VersionSeparator)
	if idx == -1 {
		return Reference{}, bulkheaderrors.NewReferenceError(ref, "missing version separator '@'")
	}

	name := trimmed[:idx]
	version := trimmed[idx+1:]
	if name == "" {
		return Reference{}, bulkheaderrors.NewReferenceError(ref, "bundle name is required")
	}
	if version == "" {
		return Reference{}, bulkheaderrors.NewReferenceError(ref, "bundle requires a version identifier")
	}

	out := Reference{Name: name, Version: version}
	if exact, err := semver.StrictNewVersion(version); err == nil {
		out.exact = exact
		return out, nil
	}

	constraint, err := semver.NewConstraint(version)
	if err != nil {
		return Reference{}, bulkheaderrors.NewReferenceError(ref, fmt.Sprintf("invalid version %q: %v", version, err))
	}
	out.constraint = constraint
	return out, nil
}

// Matches reports whether a bundle version satisfies the reference.
func (r Reference) Matches(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	if r.exact != nil {
		return r.exact.Equal(v)
	}
	if r.constraint != nil {
		return r.constraint.Check(v)
	}
	return false
}

// String returns the canonical representation of the reference.
func (r Reference) String() string {
	return r.Name + VersionSeparator + r.Version
}

func newer(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a > b
	}
	return va.GreaterThan(vb)
}
