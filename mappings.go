package auth

import (
	"time"

	"github.com/goliatone/go-auth-gate/mapping"
)

// UserProfile is the public view of a user
type UserProfile struct {
	ID            int64      `json:"id"`
	UserName      string     `json:"user_name"`
	Email         string     `json:"email,omitempty"`
	FullName      string     `json:"full_name"`
	Age           int        `json:"age,omitempty"`
	Gender        Gender     `json:"gender,omitempty"`
	IsActive      bool       `json:"is_active"`
	LastLoginDate *time.Time `json:"last_login_date,omitempty"`
	Roles         []string   `json:"roles"`
}

// RoleView is the public view of a role
type RoleView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RegisterMappings adds the user and role conversions to r
func RegisterMappings(r *mapping.Registry) error {
	if err := mapping.Register(r, ToUserProfile); err != nil {
		return err
	}
	return mapping.Register(r, ToRoleView)
}

// ToUserProfile maps a user record to its public view
func ToUserProfile(u *User) UserProfile {
	if u == nil {
		return UserProfile{}
	}

	roles := u.RoleNames()
	if roles == nil {
		roles = []string{}
	}

	return UserProfile{
		ID:            u.ID,
		UserName:      u.UserName,
		Email:         u.Email,
		FullName:      u.FullName,
		Age:           u.Age,
		Gender:        u.Gender,
		IsActive:      u.IsActive,
		LastLoginDate: u.LastLoginDate,
		Roles:         roles,
	}
}

// ToRoleView maps a role record to its public view
func ToRoleView(r *Role) RoleView {
	if r == nil {
		return RoleView{}
	}
	return RoleView{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
}
