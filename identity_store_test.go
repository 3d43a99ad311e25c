package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-gate"
)

func TestUserIdentityStore(t *testing.T) {
	ctx := context.Background()
	repos := auth.NewRepositoryManager(newTestDB(t))
	user := createUser(t, repos, "ada", true)

	at := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	store := auth.NewUserIdentityStore(repos.Users(), fixedClock(at))

	t.Run("find by id", func(t *testing.T) {
		got, err := store.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.UserName, got.UserName)
	})

	t.Run("find missing id", func(t *testing.T) {
		_, err := store.FindByID(ctx, 999)
		assert.ErrorIs(t, err, auth.ErrIdentityNotFound)
	})

	t.Run("revalidate stamp", func(t *testing.T) {
		ok, err := store.RevalidateSecurityStamp(ctx, principalFor(user, user.SecurityStamp))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.RevalidateSecurityStamp(ctx, principalFor(user, "stale"))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.RevalidateSecurityStamp(ctx, principalFor(user, ""))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.RevalidateSecurityStamp(ctx, principalFor(&auth.User{ID: 999}, "x"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revalidate reads the current stamp", func(t *testing.T) {
		rotated, err := repos.Users().UpdateSecurityStamp(ctx, user.ID)
		require.NoError(t, err)

		ok, err := store.RevalidateSecurityStamp(ctx, principalFor(user, user.SecurityStamp))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.RevalidateSecurityStamp(ctx, principalFor(user, rotated))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("update last login", func(t *testing.T) {
		record := &auth.User{ID: user.ID}
		require.NoError(t, store.UpdateLastLogin(ctx, record))
		require.NotNil(t, record.LastLoginDate)
		assert.True(t, record.LastLoginDate.Equal(at))

		stored, err := repos.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLoginDate)
		assert.True(t, stored.LastLoginDate.Equal(at))

		assert.Error(t, store.UpdateLastLogin(ctx, nil))
		assert.Error(t, store.UpdateLastLogin(ctx, &auth.User{ID: 999}))
	})
}
