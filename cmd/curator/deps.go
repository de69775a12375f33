package main

import (
	"log/slog"

	"curator/internal/pid"
	"curator/internal/pid/cache"
	"curator/internal/pid/datacite"
	"curator/internal/platform/config"
	redisplatform "curator/internal/platform/redis"
	"curator/internal/record/store"
	"curator/pkg/platform/circuit"
)

// buildPIDManager assembles the identifier manager: the DataCite provider
// for DOIs behind a circuit breaker, optionally wrapped in the Redis read
// cache, bound into a registry.
func buildPIDManager(cfg *config.Config, log *slog.Logger,
	records store.RecordStore, parents store.ParentStore,
	rdb *redisplatform.Client) (*pid.Manager, error) {

	var provider pid.Provider = datacite.New(datacite.Config{
		BaseURL:  cfg.DataCite.BaseURL,
		Username: cfg.DataCite.Username,
		Password: cfg.DataCite.Password,
		Prefix:   cfg.DataCite.Prefix,
	})
	provider = pid.WithBreaker(provider, circuit.New("datacite"), log)
	if rdb != nil {
		provider = cache.New(provider, "doi", rdb.Client, cfg.PID.CacheTTL)
	}

	registry := pid.NewRegistry()
	if err := registry.Register("doi", provider); err != nil {
		return nil, err
	}

	return pid.NewManager(registry, records, parents, pid.Config{
		RequiredSchemes:  cfg.Lifecycle.RequiredSchemes,
		LinkTemplates:    cfg.PID.LinkTemplates,
		FallbackTemplate: cfg.PID.FallbackTemplate,
	}, pid.WithLogger(log)), nil
}
