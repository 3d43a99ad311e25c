package auth

import (
	"context"
	"strings"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Roles is the role repository
type Roles interface {
	Create(ctx context.Context, record *Role) (*Role, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error)
}

type roles struct {
	db *bun.DB
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns a bun backed Roles repository
func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

// ValidateRole enforces the schema limits on name and description
func ValidateRole(record *Role) error {
	if record == nil {
		return goerrors.New("role record is required", goerrors.CategoryBadInput)
	}

	name := strings.TrimSpace(record.Name)
	fields := map[string]any{}
	if name == "" {
		fields["name"] = "is required"
	} else if utf8.RuneCountInString(name) > MaxRoleNameLength {
		fields["name"] = "must be at most 50 characters"
	}
	if utf8.RuneCountInString(record.Description) > MaxRoleDescriptionLength {
		fields["description"] = "must be at most 100 characters"
	}

	if len(fields) > 0 {
		return goerrors.New("invalid role", goerrors.CategoryValidation).
			WithMetadata(fields)
	}
	return nil
}

func (r *roles) Create(ctx context.Context, record *Role) (*Role, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	if err := ValidateRole(record); err != nil {
		return nil, err
	}
	record.Name = strings.TrimSpace(record.Name)

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "role already exists").
				WithMetadata(map[string]any{"name": record.Name})
		}
		return nil, err
	}
	return record, nil
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"name": name})
	}
	return record, nil
}

func (r *roles) List(ctx context.Context) ([]*Role, error) {
	return r.ListTx(ctx, r.db)
}

func (r *roles) ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error) {
	var records []*Role
	if err := tx.NewSelect().Model(&records).OrderExpr("?TableAlias.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
