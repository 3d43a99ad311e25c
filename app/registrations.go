package app

import (
	"context"
	"time"

	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-auth-gate/activitymap"
	"github.com/goliatone/go-auth-gate/config"
	"github.com/goliatone/go-auth-gate/container"
	"github.com/goliatone/go-auth-gate/errorlog"
	"github.com/goliatone/go-auth-gate/mapping"
	"github.com/goliatone/go-auth-gate/middleware/jwtware"
)

// Service keys
const (
	KeyConfig         = "config"
	KeyLogger         = "logger"
	KeyDB             = "db"
	KeyMetrics        = "metrics_registry"
	KeyAdmissionStats = "admission_metrics"
	KeyActivitySink   = "activity_sink"
	KeyRepositories   = "repositories"
	KeyPasswords      = "passwords"
	KeyTokenService   = "token_service"
	KeyTokenValidator = "token_validator"
	KeyIdentityStore  = "identity_store"
	KeyGate           = "admission_gate"
	KeyErrorLog       = "error_log"
	KeyMappings       = "mappings"
	KeyAuthenticator  = "authenticator"
	KeyClock          = "clock"
)

// Registrations is the lifetime table of the application. Every service
// the HTTP layer resolves is listed here once.
//
//	singleton  config, logger, db, metrics, repositories, token service,
//	           identity store, gate, error log, mappings
//	scoped     authenticator (one per request)
//	transient  clock
func Registrations(cfg *config.Config, logger auth.Logger, db *bun.DB, metrics *prometheus.Registry, clock func() time.Time) []container.Registration {
	if clock == nil {
		clock = time.Now
	}
	return []container.Registration{
		{Key: KeyConfig, Lifetime: container.Singleton, Factory: value(cfg)},
		{Key: KeyLogger, Lifetime: container.Singleton, Factory: value(logger)},
		{Key: KeyDB, Lifetime: container.Singleton, Factory: value(db)},
		{Key: KeyMetrics, Lifetime: container.Singleton, Factory: value(metrics)},
		{Key: KeyClock, Lifetime: container.Transient, Factory: value(clock)},

		{Key: KeyAdmissionStats, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			reg, err := container.Resolve[*prometheus.Registry](r, KeyMetrics)
			if err != nil {
				return nil, err
			}
			return auth.NewAdmissionMetrics(reg)
		}},

		{Key: KeyActivitySink, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			c, err := container.Resolve[*config.Config](r, KeyConfig)
			if err != nil {
				return nil, err
			}
			stats, err := container.Resolve[*auth.AdmissionMetrics](r, KeyAdmissionStats)
			if err != nil {
				return nil, err
			}
			lgr, err := container.Resolve[auth.Logger](r, KeyLogger)
			if err != nil {
				return nil, err
			}
			sinks := auth.MultiActivitySink{auth.LoggingActivitySink{Logger: lgr}, stats}
			if c.Site.AuditLog {
				sinks = append(sinks, activitymap.NewSink(auditWriter(lgr), activitymap.WithDefaultChannel(c.Site.Name)))
			}
			return sinks, nil
		}},

		{Key: KeyRepositories, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			db, err := container.Resolve[*bun.DB](r, KeyDB)
			if err != nil {
				return nil, err
			}
			repos := auth.NewRepositoryManager(db)
			if err := repos.Validate(); err != nil {
				return nil, err
			}
			return repos, nil
		}},

		{Key: KeyPasswords, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			c, err := container.Resolve[*config.Config](r, KeyConfig)
			if err != nil {
				return nil, err
			}
			return auth.BcryptPasswords{Cost: c.Site.BcryptCost}, nil
		}},

		{Key: KeyTokenService, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			c, err := container.Resolve[*config.Config](r, KeyConfig)
			if err != nil {
				return nil, err
			}
			lgr, err := container.Resolve[auth.Logger](r, KeyLogger)
			if err != nil {
				return nil, err
			}
			now, err := container.Resolve[func() time.Time](r, KeyClock)
			if err != nil {
				return nil, err
			}
			return auth.NewTokenService(
				TokenParameters(c.JWT),
				auth.WithTokenLifetime(c.JWT.NotBefore(), c.JWT.Expiration()),
				auth.WithTokenClock(now),
				auth.WithTokenLogger(lgr),
			)
		}},

		{Key: KeyTokenValidator, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			c, err := container.Resolve[*config.Config](r, KeyConfig)
			if err != nil {
				return nil, err
			}
			ts, err := container.Resolve[*auth.TokenService](r, KeyTokenService)
			if err != nil {
				return nil, err
			}
			if len(c.JWT.JWKSetURLs) == 0 {
				return auth.TokenValidator(ts), nil
			}
			remote, err := jwtware.NewKeyfuncValidator(jwtware.KeySetConfig{
				JWKSetURLs: c.JWT.JWKSetURLs,
				Issuer:     c.JWT.Issuer,
				Audience:   c.JWT.Audience,
			})
			if err != nil {
				return nil, err
			}
			return auth.TokenValidator(auth.NewMultiTokenValidator(ts, remote)), nil
		}},

		{Key: KeyIdentityStore, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			repos, err := container.Resolve[auth.RepositoryManager](r, KeyRepositories)
			if err != nil {
				return nil, err
			}
			now, err := container.Resolve[func() time.Time](r, KeyClock)
			if err != nil {
				return nil, err
			}
			return auth.NewUserIdentityStore(repos.Users(), now), nil
		}},

		{Key: KeyGate, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			store, err := container.Resolve[*auth.UserIdentityStore](r, KeyIdentityStore)
			if err != nil {
				return nil, err
			}
			sink, err := container.Resolve[auth.MultiActivitySink](r, KeyActivitySink)
			if err != nil {
				return nil, err
			}
			lgr, err := container.Resolve[auth.Logger](r, KeyLogger)
			if err != nil {
				return nil, err
			}
			return auth.NewAdmissionGate(store,
				auth.WithAdmissionActivitySink(sink),
				auth.WithAdmissionLogger(lgr),
			), nil
		}},

		{Key: KeyErrorLog, Lifetime: container.Singleton, Factory: func(r container.Resolver) (any, error) {
			c, err := container.Resolve[*config.Config](r, KeyConfig)
			if err != nil {
				return nil, err
			}
			db, err := container.Resolve[*bun.DB](r, KeyDB)
			if err != nil {
				return nil, err
			}
			lgr, err := container.Resolve[auth.Logger](r, KeyLogger)
			if err != nil {
				return nil, err
			}
			now, err := container.Resolve[func() time.Time](r, KeyClock)
			if err != nil {
				return nil, err
			}
			return errorlog.NewSink(db, c.Site.Name, lgr,
				errorlog.WithUserName(principalUserName),
				errorlog.WithClock(now),
			), nil
		}},

		{Key: KeyMappings, Lifetime: container.Singleton, Factory: func(container.Resolver) (any, error) {
			return NewMappings()
		}},

		{Key: KeyAuthenticator, Lifetime: container.Scoped, Factory: func(r container.Resolver) (any, error) {
			repos, err := container.Resolve[auth.RepositoryManager](r, KeyRepositories)
			if err != nil {
				return nil, err
			}
			ts, err := container.Resolve[*auth.TokenService](r, KeyTokenService)
			if err != nil {
				return nil, err
			}
			passwords, err := container.Resolve[auth.BcryptPasswords](r, KeyPasswords)
			if err != nil {
				return nil, err
			}
			sink, err := container.Resolve[auth.MultiActivitySink](r, KeyActivitySink)
			if err != nil {
				return nil, err
			}
			lgr, err := container.Resolve[auth.Logger](r, KeyLogger)
			if err != nil {
				return nil, err
			}
			return auth.NewAuthenticator(repos, ts).
				WithPasswordAuthenticator(passwords).
				WithActivitySink(sink).
				WithLogger(lgr), nil
		}},
	}
}

// NewMappings registers every entity to view conversion and freezes the
// registry
func NewMappings() (*mapping.Registry, error) {
	r := mapping.New()
	if err := auth.RegisterMappings(r); err != nil {
		return nil, err
	}
	if err := errorlog.RegisterMappings(r); err != nil {
		return nil, err
	}
	if err := r.Compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// TokenParameters converts the JWT settings into validation parameters
func TokenParameters(s config.JWTSettings) auth.TokenValidationParameters {
	params := auth.TokenValidationParameters{
		SigningKey:   []byte(s.SecretKey),
		SigningKeyID: s.KeyID,
		Issuer:       s.Issuer,
		Audience:     s.Audience,
	}
	if s.EncryptKey != "" {
		params.EncryptionKey = []byte(s.EncryptKey)
	}
	if len(s.KeyRing) > 0 {
		params.KeyRing = make(map[string][]byte, len(s.KeyRing))
		for kid, key := range s.KeyRing {
			params.KeyRing[kid] = []byte(key)
		}
	}
	return params
}

// auditWriter logs normalized activity records at info level
func auditWriter(lgr auth.Logger) func(context.Context, activitymap.Normalized) error {
	return func(_ context.Context, record activitymap.Normalized) error {
		lgr.Info("audit",
			"actor_id", record.ActorID,
			"verb", record.Verb,
			"object", record.ObjectType+":"+record.ObjectID,
			"channel", record.Channel,
			"metadata", print.MaybePrettyJSON(record.Metadata),
			"occurred_at", record.OccurredAt,
		)
		return nil
	}
}

func value[T any](v T) container.Factory {
	return func(container.Resolver) (any, error) {
		return v, nil
	}
}
