package auth

import (
	"context"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
)

// Auther handles password sign in and the credential changes that rotate
// the security stamp
type Auther struct {
	repos        RepositoryManager
	issuer       TokenIssuer
	passwords    PasswordAuthenticator
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repos RepositoryManager, issuer TokenIssuer) *Auther {
	return &Auther{
		repos:        repos,
		issuer:       issuer,
		passwords:    BcryptPasswords{},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithPasswordAuthenticator overrides the password hasher
func (s *Auther) WithPasswordAuthenticator(p PasswordAuthenticator) *Auther {
	if p != nil {
		s.passwords = p
	}
	return s
}

// Register stores a new active user with a hashed password and a fresh stamp
func (s *Auther) Register(ctx context.Context, user *User, password string) (*User, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password")
	}

	user.PasswordHash = hash
	user.SecurityStamp = NewSecurityStamp()
	user.IsActive = true
	return s.repos.Users().Create(ctx, user)
}

// SignIn verifies the password for userName and returns a freshly issued token
func (s *Auther) SignIn(ctx context.Context, userName, password string) (*User, string, error) {
	user, err := s.repos.Users().GetByUserName(ctx, userName)
	if err != nil {
		if goerrors.IsNotFound(err) {
			s.loginFailed(ctx, "", userName, ErrInvalidCredentials)
			return nil, "", ErrInvalidCredentials
		}
		s.logger.Error("SignIn lookup error", "error", err)
		return nil, "", err
	}

	if err := s.passwords.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.loginFailed(ctx, userID(user), userName, ErrInvalidCredentials)
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		s.loginFailed(ctx, userID(user), userName, ErrUserNotActive)
		return nil, "", ErrUserNotActive
	}

	token, err := s.issue(ctx, user)
	if err != nil {
		s.loginFailed(ctx, userID(user), userName, err)
		return nil, "", err
	}

	s.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    userID(user),
		Metadata:  map[string]any{"user_name": userName},
	})

	return user, token, nil
}

// IssueFor mints a token for an existing user without a password check.
// Used by operator tooling.
func (s *Auther) IssueFor(ctx context.Context, userName string) (string, error) {
	user, err := s.repos.Users().GetByUserName(ctx, userName)
	if err != nil {
		return "", err
	}

	if !user.IsActive {
		return "", ErrUserNotActive
	}

	return s.issue(ctx, user)
}

// ChangePassword verifies the current password, stores the new hash and
// rotates the stamp so that tokens issued before the change stop working
func (s *Auther) ChangePassword(ctx context.Context, user *User, current, next string) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	if err := s.passwords.ComparePasswordAndHash(current, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := s.passwords.HashPassword(next)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password")
	}

	stamp, err := s.repos.Users().ChangePassword(ctx, user.ID, hash)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.SecurityStamp = stamp
	s.emit(ctx, ActivityEvent{
		EventType: ActivityEventStampRotated,
		UserID:    userID(user),
		Metadata:  map[string]any{"cause": "password_change"},
	})
	return nil
}

// RotateSecurityStamp invalidates every outstanding token for the user
func (s *Auther) RotateSecurityStamp(ctx context.Context, user *User) error {
	if user == nil {
		return goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	stamp, err := s.repos.Users().UpdateSecurityStamp(ctx, user.ID)
	if err != nil {
		return err
	}

	user.SecurityStamp = stamp
	s.emit(ctx, ActivityEvent{
		EventType: ActivityEventStampRotated,
		UserID:    userID(user),
		Metadata:  map[string]any{"cause": "manual"},
	})
	return nil
}

func (s *Auther) issue(ctx context.Context, user *User) (string, error) {
	roles, err := s.repos.Users().RolesOf(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to load user roles", "error", err)
		return "", err
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}

	return s.issuer.Generate(user, names)
}

func (s *Auther) loginFailed(ctx context.Context, id, userName string, err error) {
	s.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    id,
		Err:       err,
		Metadata:  map[string]any{"user_name": userName},
	})
}

func (s *Auther) emit(ctx context.Context, event ActivityEvent) {
	if err := s.activitySink.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("auth activity sink error", "error", err)
	}
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}
