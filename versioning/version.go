// Package versioning resolves the API version of a request and rejects
// versions the service does not serve.
package versioning

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	goerrors "github.com/goliatone/go-errors"
)

// Version is an API version. "1", "1.0" and "v1" are the same version.
type Version struct {
	v *semver.Version
}

// Parse reads a version string in major[.minor] form with an optional v prefix
func Parse(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Version{}, goerrors.New("API version is empty", goerrors.CategoryBadInput).
			WithTextCode("API_VERSION_INVALID")
	}

	v, err := semver.NewVersion(trimmed)
	if err != nil {
		return Version{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "API version is not valid").
			WithTextCode("API_VERSION_INVALID").
			WithMetadata(map[string]any{"version": raw})
	}

	if v.Prerelease() != "" || v.Metadata() != "" || v.Patch() != 0 {
		return Version{}, goerrors.New("API version must be major[.minor]", goerrors.CategoryBadInput).
			WithTextCode("API_VERSION_INVALID").
			WithMetadata(map[string]any{"version": raw})
	}

	return Version{v: v}, nil
}

// MustParse is Parse that panics on error
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never set
func (v Version) IsZero() bool {
	return v.v == nil
}

// Major returns the major component
func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

// Minor returns the minor component
func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

// Equal compares two versions ignoring formatting
func (v Version) Equal(o Version) bool {
	if v.v == nil || o.v == nil {
		return v.v == o.v
	}
	return v.v.Equal(o.v)
}

// Less orders versions
func (v Version) Less(o Version) bool {
	if v.v == nil || o.v == nil {
		return v.v == nil && o.v != nil
	}
	return v.v.LessThan(o.v)
}

// String renders the version as major.minor
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d", v.v.Major(), v.v.Minor())
}
