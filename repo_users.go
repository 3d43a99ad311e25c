package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// UpdateLastLoginDateSQL stamps the login time in a single statement so
// concurrent admissions for the same user never read-modify-write.
var UpdateLastLoginDateSQL = `UPDATE "users" AS "usr"
SET
	"last_login_date" = ?,
	"updated_at" = ?
WHERE
	("usr"."id" = ?);`

// Users is the user repository
type Users interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error)
	GetByUserName(ctx context.Context, userName string) (*User, error)
	GetByUserNameTx(ctx context.Context, tx bun.IDB, userName string) (*User, error)
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	UpdateLastLoginDate(ctx context.Context, id int64, at time.Time) error
	UpdateLastLoginDateTx(ctx context.Context, tx bun.IDB, id int64, at time.Time) error
	UpdateSecurityStamp(ctx context.Context, id int64) (string, error)
	UpdateSecurityStampTx(ctx context.Context, tx bun.IDB, id int64) (string, error)
	ChangePassword(ctx context.Context, id int64, passwordHash string) (string, error)
	ChangePasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string) (string, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetActiveTx(ctx context.Context, tx bun.IDB, id int64, active bool) error

	AssignRole(ctx context.Context, userID, roleID int64) error
	AssignRoleTx(ctx context.Context, tx bun.IDB, userID, roleID int64) error
	RolesOf(ctx context.Context, userID int64) ([]*Role, error)
	RolesOfTx(ctx context.Context, tx bun.IDB, userID int64) ([]*Role, error)
}

type users struct {
	db  *bun.DB
	now func() time.Time
}

var _ Users = (*users)(nil)

// UsersOption configures the users repository
type UsersOption func(*users)

// WithUsersClock overrides the time source used for timestamps
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUsersRepository returns a bun backed Users repository
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := &users{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *users) GetByID(ctx context.Context, id int64) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"id": id})
	}
	return record, nil
}

func (a *users) GetByUserName(ctx context.Context, userName string) (*User, error) {
	return a.GetByUserNameTx(ctx, a.db, userName)
}

func (a *users) GetByUserNameTx(ctx context.Context, tx bun.IDB, userName string) (*User, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, goerrors.New("user name is required", goerrors.CategoryBadInput)
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_name = ?", userName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, map[string]any{"user_name": userName})
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil {
		return nil, goerrors.New("user record is required", goerrors.CategoryBadInput)
	}
	prepareUserDefaults(record)

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "user already exists").
				WithMetadata(map[string]any{"user_name": record.UserName})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) UpdateLastLoginDate(ctx context.Context, id int64, at time.Time) error {
	return a.UpdateLastLoginDateTx(ctx, a.db, id, at)
}

func (a *users) UpdateLastLoginDateTx(ctx context.Context, tx bun.IDB, id int64, at time.Time) error {
	res, err := tx.NewRaw(UpdateLastLoginDateSQL, at, a.now(), id).Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id})
}

// UpdateSecurityStamp rotates the stamp, invalidating every token issued
// before the call. The new stamp is returned.
func (a *users) UpdateSecurityStamp(ctx context.Context, id int64) (string, error) {
	return a.UpdateSecurityStampTx(ctx, a.db, id)
}

func (a *users) UpdateSecurityStampTx(ctx context.Context, tx bun.IDB, id int64) (string, error) {
	stamp := NewSecurityStamp()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("security_stamp = ?", stamp).
		Set("updated_at = ?", a.now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return "", err
	}
	if err := expectAffected(res, map[string]any{"id": id}); err != nil {
		return "", err
	}
	return stamp, nil
}

// ChangePassword stores the new hash and rotates the stamp in one statement
func (a *users) ChangePassword(ctx context.Context, id int64, passwordHash string) (string, error) {
	return a.ChangePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ChangePasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string) (string, error) {
	if passwordHash == "" {
		return "", ErrNoEmptyString
	}

	stamp := NewSecurityStamp()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("security_stamp = ?", stamp).
		Set("updated_at = ?", a.now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return "", err
	}
	if err := expectAffected(res, map[string]any{"id": id}); err != nil {
		return "", err
	}
	return stamp, nil
}

func (a *users) SetActive(ctx context.Context, id int64, active bool) error {
	return a.SetActiveTx(ctx, a.db, id, active)
}

func (a *users) SetActiveTx(ctx context.Context, tx bun.IDB, id int64, active bool) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", a.now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, map[string]any{"id": id})
}

func (a *users) AssignRole(ctx context.Context, userID, roleID int64) error {
	return a.AssignRoleTx(ctx, a.db, userID, roleID)
}

func (a *users) AssignRoleTx(ctx context.Context, tx bun.IDB, userID, roleID int64) error {
	link := &UserRole{UserID: userID, RoleID: roleID}
	_, err := tx.NewInsert().
		Model(link).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (a *users) RolesOf(ctx context.Context, userID int64) ([]*Role, error) {
	return a.RolesOfTx(ctx, a.db, userID)
}

func (a *users) RolesOfTx(ctx context.Context, tx bun.IDB, userID int64) ([]*Role, error) {
	var roles []*Role
	err := tx.NewSelect().
		Model(&roles).
		Join(`JOIN "user_roles" AS "ur" ON "ur"."role_id" = "rol"."id"`).
		Where(`"ur"."user_id" = ?`, userID).
		OrderExpr(`"rol"."name" ASC`).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func notFoundOr(err error, metadata map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "record not found").
			WithMetadata(metadata)
	}
	return err
}

func expectAffected(res sql.Result, metadata map[string]any) error {
	if res == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return goerrors.New("record not found", goerrors.CategoryNotFound).
			WithMetadata(metadata)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
