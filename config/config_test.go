package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-gate/config"
)

const secret = "0123456789abcdef0123"

func textCode(t *testing.T, err error) string {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a rich error, got %v", err)
	return richErr.TextCode
}

func TestLoad_RequiresSecret(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, "CONFIG_INVALID", textCode(t, err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.WithOverride("jwt.secret_key", secret))
	require.NoError(t, err)

	assert.Equal(t, "auth-gate", cfg.Site.Name)
	assert.Equal(t, "/admin/errors", cfg.Site.ErrorLogPath)
	assert.Equal(t, 10, cfg.Site.BcryptCost)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, ":8978", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration())
	assert.Equal(t, time.Duration(0), cfg.JWT.NotBefore())
	assert.Equal(t, "header:Authorization", cfg.JWT.TokenLookup)
	assert.Equal(t, []string{"1.0"}, cfg.Versioning.Supported)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GATE_JWT_SECRET_KEY", secret)
	t.Setenv("GATE_SERVER_ADDR", ":9999")
	t.Setenv("GATE_JWT_EXPIRATION_MINUTES", "5")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.JWT.SecretKey)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.JWT.Expiration())
}

func TestLoad_OverridesWinOverEnvironment(t *testing.T) {
	t.Setenv("GATE_JWT_SECRET_KEY", secret)
	t.Setenv("GATE_SITE_NAME", "from-env")

	cfg, err := config.Load(config.WithOverride("site.name", "from-flag"))
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Site.Name)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
site:
  name: yaml-gate
jwt:
  secret_key: `+secret+`
  issuer: https://issuer.example.com
database:
  driver: postgres
  dsn: postgres://gate@localhost/gate
`), 0o600))

	t.Setenv("GATE_SITE_NAME", "env-gate")

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, "env-gate", cfg.Site.Name)
	assert.Equal(t, "https://issuer.example.com", cfg.JWT.Issuer)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_KeyRing(t *testing.T) {
	cfg, err := config.Load(config.WithOverride("jwt.secret_key", secret))
	require.NoError(t, err)
	assert.Empty(t, cfg.JWT.KeyRing)

	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  secret_key: `+secret+`
  key_id: k2
  key_ring:
    k1: retired-signing-key-0001
`), 0o600))

	cfg, err = config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, "k2", cfg.JWT.KeyID)
	assert.Equal(t, map[string]string{"k1": "retired-signing-key-0001"}, cfg.JWT.KeyRing)
	assert.NotContains(t, config.Dump(cfg), "retired-signing-key-0001")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Equal(t, "CONFIG_READ_FAILED", textCode(t, err))
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "GATE_JWT_AUDIENCE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=dotenv-audience\n"), 0o600))

	cfg, err := config.Load(config.WithEnvFile(envFile), config.WithOverride("jwt.secret_key", secret))
	require.NoError(t, err)
	assert.Equal(t, "dotenv-audience", cfg.JWT.Audience)

	// a missing .env file is not an error
	_, err = config.Load(config.WithEnvFile(filepath.Join(dir, "nope.env")), config.WithOverride("jwt.secret_key", secret))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load(config.WithOverride("jwt.secret_key", secret))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"short secret", func(c *config.Config) { c.JWT.SecretKey = "short" }},
		{"bad encrypt key length", func(c *config.Config) { c.JWT.EncryptKey = "too-short" }},
		{"zero expiration", func(c *config.Config) { c.JWT.ExpirationMinutes = 0 }},
		{"unknown driver", func(c *config.Config) { c.Database.Driver = "mysql" }},
		{"relative error log path", func(c *config.Config) { c.Site.ErrorLogPath = "admin/errors" }},
		{"bcrypt cost too low", func(c *config.Config) { c.Site.BcryptCost = 2 }},
		{"bad jwk url", func(c *config.Config) { c.JWT.JWKSetURLs = []string{"not a url"} }},
		{"missing default version", func(c *config.Config) { c.Versioning.DefaultVersion = "" }},
		{"key ring without key id", func(c *config.Config) {
			c.JWT.KeyRing = map[string]string{"k1": "retired-signing-key-0001"}
		}},
		{"short key ring entry", func(c *config.Config) {
			c.JWT.KeyID = "k2"
			c.JWT.KeyRing = map[string]string{"k1": "short"}
		}},
		{"key id shadows key ring", func(c *config.Config) {
			c.JWT.KeyID = "k1"
			c.JWT.KeyRing = map[string]string{"k1": "retired-signing-key-0001"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDump_HidesSecrets(t *testing.T) {
	cfg, err := config.Load(
		config.WithOverride("jwt.secret_key", secret),
		config.WithOverride("database.dsn", "postgres://user:hunter2@db/gate"),
	)
	require.NoError(t, err)

	out := config.Dump(cfg)
	assert.NotContains(t, out, secret)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "auth-gate")
}
