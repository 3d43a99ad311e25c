package versioning

import (
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// Reader extracts the raw version requested by a client. ok is false when
// the request does not specify one.
type Reader interface {
	Read(c *fiber.Ctx) (raw string, ok bool, err error)
}

// ReaderFunc adapts a function to Reader
type ReaderFunc func(c *fiber.Ctx) (string, bool, error)

// Read implements Reader
func (f ReaderFunc) Read(c *fiber.Ctx) (string, bool, error) {
	return f(c)
}

// URLSegment reads the version from a route parameter, such as
// "/api/v:version/users"
func URLSegment(param string) Reader {
	if param == "" {
		param = "version"
	}
	return ReaderFunc(func(c *fiber.Ctx) (string, bool, error) {
		raw := strings.TrimSpace(c.Params(param))
		return raw, raw != "", nil
	})
}

// QueryString reads the version from a query parameter, api-version by default
func QueryString(name string) Reader {
	if name == "" {
		name = "api-version"
	}
	return ReaderFunc(func(c *fiber.Ctx) (string, bool, error) {
		raw := strings.TrimSpace(c.Query(name))
		return raw, raw != "", nil
	})
}

// Header reads the version from a request header, Api-Version by default
func Header(name string) Reader {
	if name == "" {
		name = "Api-Version"
	}
	return ReaderFunc(func(c *fiber.Ctx) (string, bool, error) {
		raw := strings.TrimSpace(c.Get(name))
		return raw, raw != "", nil
	})
}

// MediaType reads the version from a parameter of the Accept or
// Content-Type header, for example "application/json; v=1.0"
func MediaType(param string) Reader {
	if param == "" {
		param = "v"
	}
	return ReaderFunc(func(c *fiber.Ctx) (string, bool, error) {
		for _, header := range []string{fiber.HeaderAccept, fiber.HeaderContentType} {
			value := c.Get(header)
			if value == "" {
				continue
			}
			for _, part := range strings.Split(value, ",") {
				_, params, err := mime.ParseMediaType(strings.TrimSpace(part))
				if err != nil {
					continue
				}
				if raw := strings.TrimSpace(params[param]); raw != "" {
					return raw, true, nil
				}
			}
		}
		return "", false, nil
	})
}

// Combine consults every reader. Readers that agree are fine; conflicting
// values are an error.
func Combine(readers ...Reader) Reader {
	return ReaderFunc(func(c *fiber.Ctx) (string, bool, error) {
		var found string
		var foundVersion Version
		for _, r := range readers {
			if r == nil {
				continue
			}
			raw, ok, err := r.Read(c)
			if err != nil {
				return "", false, err
			}
			if !ok {
				continue
			}
			if found == "" {
				found = raw
				foundVersion, _ = Parse(raw)
				continue
			}
			if raw == found {
				continue
			}
			v, err := Parse(raw)
			if err != nil || foundVersion.IsZero() || !v.Equal(foundVersion) {
				return "", false, goerrors.New("The request specifies more than one API version.", goerrors.CategoryBadInput).
					WithTextCode("API_VERSION_AMBIGUOUS").
					WithMetadata(map[string]any{"versions": []string{found, raw}})
			}
		}
		return found, found != "", nil
	})
}
