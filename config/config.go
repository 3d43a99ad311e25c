// Package config loads the service settings from an optional YAML file, an
// optional .env file and GATE_ prefixed environment variables, in that order
// of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// EnvPrefix prefixes every environment override, GATE_JWT_SECRET_KEY etc.
const EnvPrefix = "GATE"

// Config is the root settings object
type Config struct {
	Site       SiteSettings       `mapstructure:"site" json:"site"`
	JWT        JWTSettings        `mapstructure:"jwt" json:"jwt"`
	Database   DatabaseSettings   `mapstructure:"database" json:"database"`
	Server     ServerSettings     `mapstructure:"server" json:"server"`
	Versioning VersioningSettings `mapstructure:"versioning" json:"versioning"`
}

// SiteSettings are application wide switches
type SiteSettings struct {
	Name         string `mapstructure:"name" json:"name"`
	ErrorLogPath string `mapstructure:"error_log_path" json:"error_log_path"`
	// ErrorLogRole, when set, is required to read the error log
	ErrorLogRole string `mapstructure:"error_log_role" json:"error_log_role"`
	Development  bool   `mapstructure:"development" json:"development"`
	// AuditLog emits one normalized record per activity event
	AuditLog   bool `mapstructure:"audit_log" json:"audit_log"`
	BcryptCost int  `mapstructure:"bcrypt_cost" json:"bcrypt_cost"`
}

// JWTSettings configure token issuance and verification
type JWTSettings struct {
	SecretKey         string   `mapstructure:"secret_key" json:"-"`
	EncryptKey        string   `mapstructure:"encrypt_key" json:"-"`
	KeyID             string   `mapstructure:"key_id" json:"key_id"`
	Issuer            string   `mapstructure:"issuer" json:"issuer"`
	Audience          string   `mapstructure:"audience" json:"audience"`
	NotBeforeMinutes  int      `mapstructure:"not_before_minutes" json:"not_before_minutes"`
	ExpirationMinutes int      `mapstructure:"expiration_minutes" json:"expiration_minutes"`
	TokenLookup       string   `mapstructure:"token_lookup" json:"token_lookup"`
	JWKSetURLs        []string `mapstructure:"jwk_set_urls" json:"jwk_set_urls"`
	// KeyRing holds retired signing keys by kid. Tokens signed with them
	// still verify while new tokens use SecretKey under KeyID.
	KeyRing map[string]string `mapstructure:"key_ring" json:"-"`
}

// NotBefore returns the not-before delay
func (j JWTSettings) NotBefore() time.Duration {
	return time.Duration(j.NotBeforeMinutes) * time.Minute
}

// Expiration returns the token lifetime
func (j JWTSettings) Expiration() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// DatabaseSettings select the SQL backend
type DatabaseSettings struct {
	Driver       string `mapstructure:"driver" json:"driver"`
	DSN          string `mapstructure:"dsn" json:"-"`
	Debug        bool   `mapstructure:"debug" json:"debug"`
	AutoMigrate  bool   `mapstructure:"auto_migrate" json:"auto_migrate"`
	MaxOpenConns int    `mapstructure:"max_open_conns" json:"max_open_conns"`
}

// ServerSettings configure the HTTP listener
type ServerSettings struct {
	Addr            string        `mapstructure:"addr" json:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// VersioningSettings configure API version negotiation
type VersioningSettings struct {
	DefaultVersion     string   `mapstructure:"default_version" json:"default_version"`
	AssumeDefault      bool     `mapstructure:"assume_default" json:"assume_default"`
	ReportAPIVersions  bool     `mapstructure:"report_api_versions" json:"report_api_versions"`
	Supported          []string `mapstructure:"supported" json:"supported"`
	Deprecated         []string `mapstructure:"deprecated" json:"deprecated"`
	AllowQueryString   bool     `mapstructure:"allow_query_string" json:"allow_query_string"`
	AllowHeader        bool     `mapstructure:"allow_header" json:"allow_header"`
	AllowMediaTypeParm bool     `mapstructure:"allow_media_type" json:"allow_media_type"`
}

// Validate checks the settings
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Site),
		validation.Field(&c.JWT),
		validation.Field(&c.Database),
		validation.Field(&c.Server),
		validation.Field(&c.Versioning),
	)
}

// Validate checks the site settings
func (s SiteSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Required, validation.Length(1, 60)),
		validation.Field(&s.ErrorLogPath, validation.Required, validation.By(startsWithSlash)),
		validation.Field(&s.BcryptCost, validation.Min(4), validation.Max(31)),
	)
}

// Validate checks the JWT settings
func (j JWTSettings) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.SecretKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&j.EncryptKey, validation.Length(16, 16)),
		validation.Field(&j.Issuer, validation.Required),
		validation.Field(&j.Audience, validation.Required),
		validation.Field(&j.NotBeforeMinutes, validation.Min(0)),
		validation.Field(&j.ExpirationMinutes, validation.Required, validation.Min(1)),
		validation.Field(&j.JWKSetURLs, validation.By(urlList)),
		validation.Field(&j.KeyRing, validation.Each(validation.Required, validation.Length(16, 0))),
		validation.Field(&j.KeyID, validation.By(requiredWithKeyRing(j.KeyRing))),
	)
}

// Validate checks the database settings
func (d DatabaseSettings) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
	)
}

// Validate checks the server settings
func (s ServerSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

// Validate checks the versioning settings
func (v VersioningSettings) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.DefaultVersion, validation.Required),
	)
}

func startsWithSlash(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}

func requiredWithKeyRing(ring map[string]string) validation.RuleFunc {
	return func(value any) error {
		kid, _ := value.(string)
		if len(ring) > 0 && kid == "" {
			return errors.New("is required when key_ring is set")
		}
		if _, ok := ring[kid]; ok && kid != "" {
			return errors.New("must not name a key_ring entry")
		}
		return nil
	}
}

func urlList(value any) error {
	urls, _ := value.([]string)
	for i, u := range urls {
		if err := validation.Validate(u, validation.Required, is.URL); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}
