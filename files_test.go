package auth_test

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-gate"
)

func TestGetMigrationsFS(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres"} {
		t.Run(dialect, func(t *testing.T) {
			entries, err := fs.ReadDir(auth.GetMigrationsFS(), "data/sql/migrations/"+dialect)
			require.NoError(t, err)

			var up, down int
			for _, e := range entries {
				switch {
				case strings.HasSuffix(e.Name(), ".up.sql"):
					up++
				case strings.HasSuffix(e.Name(), ".down.sql"):
					down++
				}
			}
			assert.Equal(t, 3, up)
			assert.Equal(t, up, down)
		})
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	applied, err := auth.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int
	err = db.NewRaw(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'roles', 'user_roles', 'error_logs')`).
		Scan(ctx, &count)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
