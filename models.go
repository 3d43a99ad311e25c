package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Gender of a user profile
type Gender = string

const (
	GenderUnknown Gender = "unknown"
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	UserName      string     `bun:"user_name,notnull,unique" json:"user_name"`
	Email         string     `bun:"email,nullzero,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	FullName      string     `bun:"full_name,notnull" json:"full_name"`
	Age           int        `bun:"age" json:"age,omitempty"`
	Gender        Gender     `bun:"gender" json:"gender,omitempty"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	SecurityStamp string     `bun:"security_stamp,notnull" json:"-"`
	LastLoginDate *time.Time `bun:"last_login_date,nullzero" json:"last_login_date,omitempty"`
	Roles         []*Role    `bun:"m2m:user_roles,join:User=Role" json:"roles,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RoleNames returns the names of the loaded roles
func (u *User) RoleNames() []string {
	if u == nil || len(u.Roles) == 0 {
		return nil
	}
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r != nil {
			out = append(out, r.Name)
		}
	}
	return out
}

// Role is a named group of permissions
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	Name          string     `bun:"name,notnull,unique" json:"name"`
	Description   string     `bun:"description,notnull" json:"description"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserRole joins users and roles
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:usrl"`
	UserID        int64 `bun:"user_id,pk"`
	User          *User `bun:"rel:belongs-to,join:user_id=id"`
	RoleID        int64 `bun:"role_id,pk"`
	Role          *Role `bun:"rel:belongs-to,join:role_id=id"`
}

const (
	// MaxRoleNameLength is the longest role name the schema accepts
	MaxRoleNameLength = 50
	// MaxRoleDescriptionLength is the longest role description the schema accepts
	MaxRoleDescriptionLength = 100
	// MaxUserNameLength is the longest user name the schema accepts
	MaxUserNameLength = 100
)

// NewSecurityStamp returns a fresh stamp value
func NewSecurityStamp() string {
	return uuid.NewString()
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.SecurityStamp == "" {
		record.SecurityStamp = NewSecurityStamp()
	}

	if record.Gender == "" {
		record.Gender = GenderUnknown
	}
}
