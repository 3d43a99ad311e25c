// Package errorlog stores request failures in SQL and exposes a small
// viewer over them.
package errorlog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-auth-gate/api"
)

// Entry is one logged failure
type Entry struct {
	bun.BaseModel `bun:"table:error_logs,alias:elg"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Application   string     `bun:"application,notnull" json:"application"`
	Host          string     `bun:"host,notnull" json:"host"`
	Type          string     `bun:"type,notnull" json:"type"`
	Source        string     `bun:"source,notnull" json:"source"`
	Message       string     `bun:"message,notnull" json:"message"`
	Detail        string     `bun:"detail" json:"detail,omitempty"`
	StatusCode    int        `bun:"status_code,notnull" json:"status_code"`
	UserName      string     `bun:"user_name,notnull" json:"user_name"`
	Method        string     `bun:"method,notnull" json:"method"`
	URL           string     `bun:"url,notnull" json:"url"`
	TextCode      string     `bun:"text_code,notnull" json:"text_code"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// Logger is the logging surface used by the sink
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserNameFunc extracts the acting user name from a request, if any
type UserNameFunc func(c *fiber.Ctx) string

// NewRepository returns the go-repository-bun repository for entries
func NewRepository(db *bun.DB) repository.Repository[*Entry] {
	return repository.NewRepository[*Entry](db, repository.ModelHandlers[*Entry]{
		NewRecord: func() *Entry { return &Entry{} },
		GetID: func(e *Entry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *Entry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})
}

// Sink writes entries. Storage failures are logged, never returned to the
// request.
type Sink struct {
	repo        repository.Repository[*Entry]
	db          *bun.DB
	application string
	host        string
	userName    UserNameFunc
	logger      Logger
	now         func() time.Time
}

var _ api.ErrorRecorder = (*Sink)(nil)

// SinkOption configures a Sink
type SinkOption func(*Sink)

// WithUserName sets the function used to fill Entry.UserName
func WithUserName(fn UserNameFunc) SinkOption {
	return func(s *Sink) {
		s.userName = fn
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSink creates a Sink for application over db
func NewSink(db *bun.DB, application string, logger Logger, opts ...SinkOption) *Sink {
	host, _ := os.Hostname()
	s := &Sink{
		repo:        NewRepository(db),
		db:          db,
		application: application,
		host:        host,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Log stores err with optional request metadata
func (s *Sink) Log(ctx context.Context, err error, meta Meta) *Entry {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, err.Error())
	}

	now := s.now().UTC()
	entry := &Entry{
		ID:          uuid.New(),
		Application: s.application,
		Host:        s.host,
		Type:        fmt.Sprint(richErr.Category),
		Message:     richErr.Message,
		StatusCode:  meta.StatusCode,
		UserName:    meta.UserName,
		Method:      meta.Method,
		URL:         meta.URL,
		TextCode:    richErr.TextCode,
		CreatedAt:   &now,
	}
	if richErr.Source != nil {
		entry.Source = truncate(richErr.Source.Error(), 255)
	}
	if len(richErr.Metadata) > 0 {
		entry.Detail = print.MaybePrettyJSON(richErr.Metadata)
	}

	if _, createErr := s.repo.Create(ctx, entry); createErr != nil {
		if s.logger != nil {
			s.logger.Warn("error log write failed", "error", createErr, "original", richErr.Message)
		}
		return nil
	}
	return entry
}

// Meta is request information attached to an entry
type Meta struct {
	StatusCode int
	UserName   string
	Method     string
	URL        string
}

// Record implements api.ErrorRecorder
func (s *Sink) Record(ctx context.Context, c *fiber.Ctx, err *goerrors.Error, httpStatus int) {
	meta := Meta{
		StatusCode: httpStatus,
		Method:     c.Method(),
		URL:        c.OriginalURL(),
	}
	if s.userName != nil {
		meta.UserName = s.userName(c)
	}
	s.Log(context.WithoutCancel(ctx), err, meta)
}

// Get returns one entry
func (s *Sink) Get(ctx context.Context, id string) (*Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, goerrors.New("invalid error log id", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"id": id})
	}

	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryNotFound, "error log entry not found").
				WithMetadata(map[string]any{"id": id})
		}
		return nil, err
	}
	return entry, nil
}

// Page is one page of entries, newest first
type Page struct {
	Items  []*Entry
	Total  int
	Limit  int
	Offset int
}

// List returns entries newest first
func (s *Sink) List(ctx context.Context, limit, offset int) (*Page, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var items []*Entry
	total, err := s.db.NewSelect().
		Model(&items).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
