package auth_test

import (
	"context"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-gate"
)

func TestValidateRole(t *testing.T) {
	tests := []struct {
		name    string
		role    *auth.Role
		wantErr bool
	}{
		{name: "valid", role: &auth.Role{Name: "admin", Description: "Administrators"}},
		{name: "nil", role: nil, wantErr: true},
		{name: "blank name", role: &auth.Role{Name: "  "}, wantErr: true},
		{name: "long name", role: &auth.Role{Name: strings.Repeat("r", auth.MaxRoleNameLength+1)}, wantErr: true},
		{name: "max name", role: &auth.Role{Name: strings.Repeat("r", auth.MaxRoleNameLength)}},
		{name: "long description", role: &auth.Role{Name: "ok", Description: strings.Repeat("d", auth.MaxRoleDescriptionLength+1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateRole(tt.role)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRoles_CreateGetList(t *testing.T) {
	ctx := context.Background()
	repos := auth.NewRepositoryManager(newTestDB(t))

	created, err := repos.Roles().Create(ctx, &auth.Role{Name: " viewer ", Description: "Read only"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "viewer", created.Name)

	_, err = repos.Roles().Create(ctx, &auth.Role{Name: "admin"})
	require.NoError(t, err)

	got, err := repos.Roles().GetByName(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Read only", got.Description)

	_, err = repos.Roles().GetByName(ctx, "missing")
	assert.True(t, goerrors.IsNotFound(err))

	list, err := repos.Roles().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].Name)
	assert.Equal(t, "viewer", list[1].Name)

	t.Run("duplicate name is a conflict", func(t *testing.T) {
		_, err := repos.Roles().Create(ctx, &auth.Role{Name: "admin"})
		require.Error(t, err)
		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	})

	t.Run("invalid role is not stored", func(t *testing.T) {
		_, err := repos.Roles().Create(ctx, &auth.Role{Name: ""})
		assert.Error(t, err)
		list, err := repos.Roles().List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
