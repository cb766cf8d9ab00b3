// Package app opens the infrastructure shared by the api, consumers and
// inkctl binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"inkbook/internal/cache"
	"inkbook/internal/config"
	"inkbook/internal/database"
	"inkbook/internal/external"
	"inkbook/internal/integrations"
	"inkbook/internal/notify"
	"inkbook/internal/repository"
	"inkbook/internal/search"
	"inkbook/internal/service"
)

// Core holds connections and the services built directly on them.
type Core struct {
	Config   *config.Config
	DB       *database.DB
	Repos    *repository.Repositories
	Redis    *cache.RedisClient
	Search   *search.ClientIndex
	Resolver *integrations.Resolver
	Clients  *service.ClientService
}

// Open connects to Postgres and runs migrations. Redis and Elasticsearch
// are optional: a failed connection is logged and the feature is disabled.
func Open(cfg *config.Config) (*Core, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	env, err := integrations.LoadEnvCredentials()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	core := &Core{
		Config: cfg,
		DB:     db,
		Repos:  repository.NewRepositories(db),
	}
	core.Resolver = integrations.NewResolver(core.Repos.Integrations, env, cfg.Providers)

	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, rate limiting and rate cache disabled", "error", err)
		} else {
			core.Redis = rc
		}
	}

	// A nil *ClientIndex must not become a non-nil interface
	var searcher service.ClientSearcher
	if cfg.Elasticsearch.Enabled() {
		idx, err := search.NewClientIndex(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, client search uses the database", "error", err)
		} else {
			core.Search = idx
			searcher = idx
		}
	}
	core.Clients = service.NewClientService(core.Repos.Clients, core.Repos.Bookings, searcher)

	return core, nil
}

// Rates returns the EUR to BRL source, cached in Redis when available.
func (c *Core) Rates() *external.RateClient {
	ratesCfg := c.Config.Rates
	if ratesCfg.Timeout <= 0 {
		ratesCfg.Timeout = c.Config.Providers.Timeout
	}

	var rateCache external.RateCache
	if c.Redis != nil {
		rateCache = c.Redis
	}
	return external.NewRateClient(ratesCfg, rateCache)
}

// Registry wires every notification channel.
func (c *Core) Registry() *notify.Registry {
	return notify.NewRegistry(
		notify.NewEmailChannel(c.Resolver, c.Config.PublicBaseURL),
		notify.NewWhatsAppChannel(c.Resolver),
		notify.NewCalendarChannel(c.Resolver),
		notify.NewCRMChannel(c.Clients),
	)
}

// Close releases every connection, reporting all failures.
func (c *Core) Close() error {
	var errs []error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
