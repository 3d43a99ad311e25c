package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-auth-gate"
)

func TestUserContext(t *testing.T) {
	t.Run("returns the stored user", func(t *testing.T) {
		user := &auth.User{ID: 1, UserName: "ada"}
		got, ok := auth.FromContext(auth.WithContext(context.Background(), user))
		assert.True(t, ok)
		assert.Same(t, user, got)
	})

	t.Run("missing user", func(t *testing.T) {
		_, ok := auth.FromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("nil user", func(t *testing.T) {
		_, ok := auth.FromContext(auth.WithContext(context.Background(), nil))
		assert.False(t, ok)
	})
}

func TestPrincipalContext(t *testing.T) {
	principal := auth.NewPrincipal(
		auth.Claim{Type: auth.ClaimTypeSubject, Value: "1"},
		auth.Claim{Type: auth.ClaimTypeRole, Value: "admin"},
	)
	ctx := auth.WithPrincipalContext(context.Background(), principal)

	got, ok := auth.PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, principal, got)

	assert.True(t, auth.InRole(ctx, "admin"))
	assert.True(t, auth.InRole(ctx, "ADMIN"))
	assert.False(t, auth.InRole(ctx, "owner"))
	assert.False(t, auth.InRole(context.Background(), "admin"))
}
