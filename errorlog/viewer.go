package errorlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-auth-gate/api"
	"github.com/goliatone/go-auth-gate/mapping"
)

// EntryView is the viewer representation of an Entry
type EntryView struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	TextCode   string     `json:"text_code,omitempty"`
	StatusCode int        `json:"status_code"`
	Method     string     `json:"method"`
	URL        string     `json:"url"`
	UserName   string     `json:"user_name,omitempty"`
	Host       string     `json:"host"`
	Source     string     `json:"source,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	CreatedAt  *time.Time `json:"created_at"`
}

// ToEntryView maps an entry to its view
func ToEntryView(e *Entry) EntryView {
	if e == nil {
		return EntryView{}
	}
	return EntryView{
		ID:         e.ID.String(),
		Type:       e.Type,
		Message:    e.Message,
		TextCode:   e.TextCode,
		StatusCode: e.StatusCode,
		Method:     e.Method,
		URL:        e.URL,
		UserName:   e.UserName,
		Host:       e.Host,
		Source:     e.Source,
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt,
	}
}

// RegisterMappings adds the Entry conversion to r
func RegisterMappings(r *mapping.Registry) error {
	return mapping.Register(r, ToEntryView)
}

// PermissionFunc decides whether the request may read the error log
type PermissionFunc func(c *fiber.Ctx) bool

// ViewerConfig configures Mount
type ViewerConfig struct {
	Path     string
	Sink     *Sink
	Mappings *mapping.Registry
	// Permission defaults to denying every request
	Permission PermissionFunc
}

// Mount registers the list and detail routes on router. Middleware given
// runs before the permission check.
func Mount(router fiber.Router, cfg ViewerConfig, middleware ...fiber.Handler) {
	path := "/" + strings.Trim(cfg.Path, "/")
	permission := cfg.Permission
	if permission == nil {
		permission = func(*fiber.Ctx) bool { return false }
	}

	guard := func(c *fiber.Ctx) error {
		if !permission(c) {
			return goerrors.New("You are not allowed to view the error log.", goerrors.CategoryAuthz).
				WithCode(fiber.StatusForbidden)
		}
		return c.Next()
	}

	handlers := append(append([]fiber.Handler{}, middleware...), guard)

	group := router.Group(path, handlers...)
	group.Get("/", listHandler(cfg))
	group.Get("/:id", detailHandler(cfg))
}

func listHandler(cfg ViewerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := cfg.Sink.List(c.UserContext(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
		if err != nil {
			return err
		}

		views, err := mapping.MapSlice[*Entry, EntryView](cfg.Mappings, page.Items)
		if err != nil {
			return err
		}

		c.Set("X-Total-Count", strconv.Itoa(page.Total))
		return api.List(c, views)
	}
}

func detailHandler(cfg ViewerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entry, err := cfg.Sink.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}

		view, err := mapping.Map[*Entry, EntryView](cfg.Mappings, entry)
		if err != nil {
			return err
		}
		return api.OK(c, view)
	}
}
