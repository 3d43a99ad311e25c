package auth_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-gate"
)

const testPassword = "correct-horse-battery"

type authFixture struct {
	repos  auth.RepositoryManager
	tokens *auth.TokenService
	auther *auth.Auther
	gate   *auth.AdmissionGate
	sink   *captureSink
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db)
	tokens := newTestTokenService(t)
	sink := &captureSink{}

	return &authFixture{
		repos:  repos,
		tokens: tokens,
		sink:   sink,
		auther: auth.NewAuthenticator(repos, tokens).
			WithPasswordAuthenticator(auth.BcryptPasswords{Cost: 4}).
			WithActivitySink(sink),
		gate: newGate(auth.NewUserIdentityStore(repos.Users(), nil), nil),
	}
}

// admit runs a raw token through verification and the admission gate
func (f *authFixture) admit(token string) (*auth.User, error) {
	principal, err := f.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	return f.gate.Admit(context.Background(), principal)
}

func TestAuther_Register(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	user, err := f.auther.Register(ctx, &auth.User{
		UserName: "ada",
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
		IsActive: false,
	}, testPassword)
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.SecurityStamp)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.NoError(t, auth.ComparePasswordAndHash(testPassword, user.PasswordHash))

	t.Run("duplicate user name", func(t *testing.T) {
		_, err := f.auther.Register(ctx, &auth.User{UserName: "ada", FullName: "Other"}, testPassword)
		require.Error(t, err)
		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := f.auther.Register(ctx, &auth.User{UserName: "bob", FullName: "Bob"}, "")
		assert.ErrorIs(t, err, auth.ErrNoEmptyString)
	})

	t.Run("nil user", func(t *testing.T) {
		_, err := f.auther.Register(ctx, nil, testPassword)
		assert.Error(t, err)
	})
}

func TestAuther_SignIn(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := createUser(t, f.repos, "grace", true)

	role, err := f.repos.Roles().Create(ctx, &auth.Role{Name: "admin", Description: "Administrators"})
	require.NoError(t, err)
	require.NoError(t, f.repos.Users().AssignRole(ctx, user.ID, role.ID))

	t.Run("valid credentials", func(t *testing.T) {
		got, token, err := f.auther.SignIn(ctx, "grace", testPassword)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		require.NotEmpty(t, token)

		principal, err := f.tokens.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, principal.Roles())
		assert.Equal(t, user.SecurityStamp, principal.SecurityStamp())

		assert.Equal(t, auth.ActivityEventLoginSuccess, f.sink.Last().EventType)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := f.auther.SignIn(ctx, "grace", "not-the-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, auth.ActivityEventLoginFailure, f.sink.Last().EventType)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, err := f.auther.SignIn(ctx, "nobody", testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		createUser(t, f.repos, "dormant", false)
		_, _, err := f.auther.SignIn(ctx, "dormant", testPassword)
		assert.ErrorIs(t, err, auth.ErrUserNotActive)
	})
}

func TestAuther_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	createUser(t, f.repos, "linus", true)

	user, token, err := f.auther.SignIn(ctx, "linus", testPassword)
	require.NoError(t, err)

	admitted, err := f.admit(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, admitted.ID)

	t.Run("password change invalidates earlier tokens", func(t *testing.T) {
		require.NoError(t, f.auther.ChangePassword(ctx, admitted, testPassword, "a-brand-new-secret"))
		assert.Equal(t, auth.ActivityEventStampRotated, f.sink.Last().EventType)

		_, err := f.admit(token)
		reason, ok := auth.RejectionReason(err)
		require.True(t, ok)
		assert.Equal(t, auth.ReasonInvalidSecurityStamp, reason)

		_, _, err = f.auther.SignIn(ctx, "linus", testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		_, token, err = f.auther.SignIn(ctx, "linus", "a-brand-new-secret")
		require.NoError(t, err)
		_, err = f.admit(token)
		assert.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		err := f.auther.ChangePassword(ctx, admitted, "wrong", "another-new-secret")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("stamp rotation invalidates earlier tokens", func(t *testing.T) {
		require.NoError(t, f.auther.RotateSecurityStamp(ctx, admitted))

		_, err := f.admit(token)
		reason, _ := auth.RejectionReason(err)
		assert.Equal(t, auth.ReasonInvalidSecurityStamp, reason)
	})
}

func TestAuther_IssueFor(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	createUser(t, f.repos, "ops", true)
	createUser(t, f.repos, "retired", false)

	token, err := f.auther.IssueFor(ctx, "ops")
	require.NoError(t, err)
	_, err = f.admit(token)
	assert.NoError(t, err)

	_, err = f.auther.IssueFor(ctx, "retired")
	assert.ErrorIs(t, err, auth.ErrUserNotActive)

	_, err = f.auther.IssueFor(ctx, "missing")
	assert.True(t, goerrors.IsNotFound(err))
}
