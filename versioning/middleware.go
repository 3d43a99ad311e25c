package versioning

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// LocalsKey is the fiber locals key holding the resolved Version
	LocalsKey = "api_version"

	HeaderSupported  = "api-supported-versions"
	HeaderDeprecated = "api-deprecated-versions"
)

// Options configures Middleware
type Options struct {
	DefaultVersion                      Version
	AssumeDefaultVersionWhenUnspecified bool
	ReportAPIVersions                   bool
	Supported                           []Version
	Deprecated                          []Version
	Reader                              Reader
}

// DefaultOptions returns version 1.0 as default and only supported version,
// reported in headers and read from the :version route parameter
func DefaultOptions() Options {
	v1 := MustParse("1.0")
	return Options{
		DefaultVersion:                      v1,
		AssumeDefaultVersionWhenUnspecified: true,
		ReportAPIVersions:                   true,
		Supported:                           []Version{v1},
		Reader:                              URLSegment("version"),
	}
}

// Middleware resolves the request version, rejects unsupported ones and
// stores the result in locals
func Middleware(opts Options) fiber.Handler {
	if opts.Reader == nil {
		opts.Reader = URLSegment("version")
	}
	if opts.DefaultVersion.IsZero() {
		opts.DefaultVersion = MustParse("1.0")
	}
	if len(opts.Supported) == 0 && len(opts.Deprecated) == 0 {
		opts.Supported = []Version{opts.DefaultVersion}
	}

	supportedHeader := join(opts.Supported)
	deprecatedHeader := join(opts.Deprecated)

	return func(c *fiber.Ctx) error {
		if opts.ReportAPIVersions {
			if supportedHeader != "" {
				c.Set(HeaderSupported, supportedHeader)
			}
			if deprecatedHeader != "" {
				c.Set(HeaderDeprecated, deprecatedHeader)
			}
		}

		raw, ok, err := opts.Reader.Read(c)
		if err != nil {
			return err
		}

		var version Version
		switch {
		case ok:
			version, err = Parse(raw)
			if err != nil {
				return err
			}
		case opts.AssumeDefaultVersionWhenUnspecified:
			version = opts.DefaultVersion
		default:
			return goerrors.New("An API version is required, but was not specified.", goerrors.CategoryBadInput).
				WithTextCode("API_VERSION_UNSPECIFIED")
		}

		if !contains(opts.Supported, version) && !contains(opts.Deprecated, version) {
			return goerrors.New("The requested API version is not supported.", goerrors.CategoryBadInput).
				WithTextCode("API_VERSION_UNSUPPORTED").
				WithMetadata(map[string]any{"requested": version.String(), "supported": supportedHeader})
		}

		c.Locals(LocalsKey, version)
		return c.Next()
	}
}

// FromContext returns the version resolved by Middleware
func FromContext(c *fiber.Ctx) (Version, bool) {
	v, ok := c.Locals(LocalsKey).(Version)
	return v, ok
}

func contains(list []Version, v Version) bool {
	return slices.ContainsFunc(list, v.Equal)
}

func join(list []Version) string {
	sorted := slices.Clone(list)
	slices.SortFunc(sorted, func(a, b Version) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})

	parts := make([]string, 0, len(sorted))
	for _, v := range sorted {
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ", ")
}
