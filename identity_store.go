package auth

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// UserIdentityStore backs the admission gate with the Users repository
type UserIdentityStore struct {
	users Users
	now   func() time.Time
}

var _ IdentityStore = (*UserIdentityStore)(nil)

// NewUserIdentityStore creates a store over the given repository
func NewUserIdentityStore(users Users, now func() time.Time) *UserIdentityStore {
	if now == nil {
		now = time.Now
	}
	return &UserIdentityStore{users: users, now: now}
}

// FindByID implements IdentityStore. A missing user is reported as
// ErrIdentityNotFound.
func (s *UserIdentityStore) FindByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return user, nil
}

// RevalidateSecurityStamp re-reads the user named by the principal and
// compares its stored stamp against the stamp claim.
func (s *UserIdentityStore) RevalidateSecurityStamp(ctx context.Context, principal *Principal) (bool, error) {
	claimed := principal.SecurityStamp()
	if claimed == "" {
		return false, nil
	}

	id, err := principal.UserID()
	if err != nil {
		return false, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(claimed), []byte(user.SecurityStamp)) == 1, nil
}

// UpdateLastLogin implements IdentityStore
func (s *UserIdentityStore) UpdateLastLogin(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	at := s.now()
	if err := s.users.UpdateLastLoginDate(ctx, user.ID, at); err != nil {
		return err
	}
	user.LastLoginDate = &at
	return nil
}
