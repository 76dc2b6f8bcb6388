package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	appservice "pollworker/internal/application/service"
	appstore "pollworker/internal/application/store"
	"pollworker/internal/audit"
	auditstore "pollworker/internal/audit/store"
	"pollworker/internal/platform/config"
	"pollworker/internal/platform/postgres"
	"pollworker/internal/platform/redis"
	settingsservice "pollworker/internal/settings/service"
	settingsstore "pollworker/internal/settings/store"
	userservice "pollworker/internal/user/service"
	userstore "pollworker/internal/user/store"
	txcontext "pollworker/pkg/platform/tx"
)

// userStore serves both sign-in lookups and account provisioning.
type userStore interface {
	userservice.Store
	appservice.UserProvisioner
}

// backends holds the persistence chosen by configuration: PostgreSQL and
// Redis when configured, in-memory otherwise.
type backends struct {
	applications appservice.ApplicationStore
	users        userStore
	audit        audit.Store
	settings     settingsservice.Store
	tx           txcontext.Runner

	// checks are probed by /health, keyed by dependency name.
	checks  map[string]func(context.Context) error
	closers []func() error
}

func openBackends(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: map[string]func(context.Context) error{}}

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		b.usePostgres(db)
		b.checks["postgres"] = db.PingContext
		logger.Info("using postgres stores")
	} else {
		b.applications = appstore.NewInMemory()
		b.users = userstore.NewInMemory()
		b.audit = auditstore.NewInMemoryStore()
		b.tx = txcontext.NewLockRunner()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		b.closers = append(b.closers, client.Close)
		b.settings = settingsstore.NewRedis(client.Client)
		b.checks["redis"] = client.Health
		logger.Info("using redis settings store")
	} else {
		b.settings = settingsstore.NewInMemory()
	}
	return b, nil
}

func (b *backends) usePostgres(db *sql.DB) {
	b.applications = appstore.NewPostgres(db)
	b.users = userstore.NewPostgres(db)
	b.audit = auditstore.NewPostgresStore(db)
	b.tx = txcontext.NewPostgresRunner(db)
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}
