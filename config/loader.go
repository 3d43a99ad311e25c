package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoaderConfig holds optional file overrides
type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
	// Overrides are applied last, mostly used by tests and CLI flags
	Overrides map[string]any
}

// LoaderOption configures Load
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit YAML/JSON/TOML config file
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets a .env file loaded into the process environment
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithOverride sets a single key, e.g. "server.addr"
func WithOverride(key string, value any) LoaderOption {
	return func(lc *LoaderConfig) {
		if lc.Overrides == nil {
			lc.Overrides = map[string]any{}
		}
		lc.Overrides[key] = value
	}
}

// Defaults returns the built in settings
func Defaults() map[string]any {
	return map[string]any{
		"site.name":           "auth-gate",
		"site.error_log_path": "/admin/errors",
		"site.error_log_role": "admin",
		"site.development":    false,
		"site.audit_log":      true,
		"site.bcrypt_cost":    10,

		"jwt.secret_key":         "",
		"jwt.encrypt_key":        "",
		"jwt.key_id":             "",
		"jwt.issuer":             "auth-gate",
		"jwt.audience":           "auth-gate",
		"jwt.not_before_minutes": 0,
		"jwt.expiration_minutes": 60,
		"jwt.token_lookup":       "header:Authorization",
		"jwt.jwk_set_urls":       []string{},
		"jwt.key_ring":           map[string]string{},

		"database.driver":         "sqlite",
		"database.dsn":            "file:gate.db?cache=shared",
		"database.debug":          false,
		"database.auto_migrate":   true,
		"database.max_open_conns": 0,

		"server.addr":             ":8978",
		"server.read_timeout":     10 * time.Second,
		"server.write_timeout":    10 * time.Second,
		"server.shutdown_timeout": 15 * time.Second,

		"versioning.default_version":     "1.0",
		"versioning.assume_default":      true,
		"versioning.report_api_versions": true,
		"versioning.supported":           []string{"1.0"},
		"versioning.deprecated":          []string{},
		"versioning.allow_query_string":  true,
		"versioning.allow_header":        true,
		"versioning.allow_media_type":    false,
	}
}

// Load resolves the configuration. Precedence, lowest first: defaults,
// config file, environment (after the .env file is applied), overrides.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
				WithTextCode("CONFIG_READ_FAILED").
				WithMetadata(map[string]any{"path": lc.ConfigFile})
		}
	}

	if lc.EnvFile != "" {
		if _, err := os.Stat(lc.EnvFile); err == nil {
			if err := godotenv.Load(lc.EnvFile); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load env file").
					WithTextCode("CONFIG_ENV_FAILED").
					WithMetadata(map[string]any{"path": lc.EnvFile})
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range lc.Overrides {
		v.Set(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode config").
			WithTextCode("CONFIG_DECODE_FAILED")
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithTextCode("CONFIG_INVALID").
			WithMetadata(map[string]any{"errors": err.Error()})
	}

	return cfg, nil
}

// Dump renders the configuration without secrets
func Dump(cfg *Config) string {
	return fmt.Sprint(print.MaybePrettyJSON(cfg))
}
