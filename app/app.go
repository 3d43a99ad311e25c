// Package app composes the gate service: database, migrations, the service
// lifetime table and the fiber application.
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-auth-gate/api"
	"github.com/goliatone/go-auth-gate/config"
	"github.com/goliatone/go-auth-gate/container"
	"github.com/goliatone/go-auth-gate/errorlog"
)

// App holds the composed service
type App struct {
	config    *config.Config
	logger    auth.Logger
	db        *bun.DB
	metrics   *prometheus.Registry
	container *container.Container
	server    *fiber.App
}

// Option customizes New
type Option func(*options)

type options struct {
	db      *bun.DB
	metrics *prometheus.Registry
	clock   func() time.Time
	skipRun bool
}

// WithDB uses an already opened database instead of the configured one
func WithDB(db *bun.DB) Option {
	return func(o *options) { o.db = db }
}

// WithMetricsRegistry uses reg instead of a fresh prometheus registry
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithClock replaces the wall clock used by the token service, the identity
// store and the error log
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithoutMigrations skips the migration run even if auto_migrate is set
func WithoutMigrations() Option {
	return func(o *options) { o.skipRun = true }
}

// New builds the application from cfg
func New(ctx context.Context, cfg *config.Config, logger auth.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, goerrors.New("configuration is required", goerrors.CategoryValidation)
	}
	if logger == nil {
		logger = auth.DefaultLogger()
	}

	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	db := o.db
	if db == nil {
		var err error
		if db, err = OpenDB(cfg.Database); err != nil {
			return nil, err
		}
	}

	if cfg.Database.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if cfg.Database.AutoMigrate && !o.skipRun {
		applied, err := auth.Migrate(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "migrations", applied)
		}
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = prometheus.NewRegistry()
		metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c, err := container.NewRegistry().
		Add(Registrations(cfg, logger, db, metrics, o.clock)...).
		Build()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// singletons are resolved up front so wiring errors surface at start
	for _, key := range c.Keys() {
		if lifetime, _ := c.Lifetime(key); lifetime != container.Singleton {
			continue
		}
		if _, err := c.Resolve(key); err != nil {
			_ = c.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build service").
				WithMetadata(map[string]any{"service": key})
		}
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		metrics:   metrics,
		container: c,
	}

	sink := container.MustResolve[*errorlog.Sink](c, KeyErrorLog)
	a.server = fiber.New(fiber.Config{
		AppName:               cfg.Site.Name,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler: api.ErrorHandler(api.ErrorHandlerConfig{
			Logger:      logger,
			Recorder:    sink,
			Development: cfg.Site.Development,
		}),
	})

	if err := a.routes(); err != nil {
		_ = c.Close()
		return nil, err
	}

	return a, nil
}

// OpenDB opens the configured database with the matching bun dialect
func OpenDB(cfg config.DatabaseSettings) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"driver": cfg.Driver})
	}
	return db, nil
}

// Server returns the fiber application
func (a *App) Server() *fiber.App {
	return a.server
}

// Container returns the service container
func (a *App) Container() *container.Container {
	return a.container
}

// DB returns the database handle
func (a *App) DB() *bun.DB {
	return a.db
}

// Serve listens on the configured address until ctx is done, then shuts
// the server down within the shutdown timeout
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.config.Server.Addr)
		errCh <- a.server.Listen(a.config.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := a.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a.logger.Info("server shutting down", "timeout", timeout.String())
	if err := a.server.ShutdownWithTimeout(timeout); err != nil {
		return err
	}
	return <-errCh
}

// Close releases the container singletons. The database is one of them,
// also when it was passed in WithDB.
func (a *App) Close() error {
	if a.container == nil {
		return nil
	}
	return a.container.Close()
}
