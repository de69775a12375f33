package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	jwttoken "curator/internal/jwt_token"
	"curator/internal/outbox"
	"curator/internal/platform/config"
	"curator/internal/platform/httpserver"
	"curator/internal/platform/logger"
	"curator/internal/platform/postgres"
	redisplatform "curator/internal/platform/redis"
	"curator/internal/policy"
	"curator/internal/record/handler"
	"curator/internal/record/metrics"
	"curator/internal/record/service"
	"curator/internal/record/store"
	"curator/internal/record/versions"
	httptransport "curator/internal/transport/http"
	"curator/pkg/platform/tx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("curator-api")

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	records := store.NewPostgresRecordStore(db)
	parents := store.NewPostgresParentStore(db)
	versionStore := store.NewPostgresVersionStore(db)
	chain := versions.NewChain(records, versionStore)

	manager, err := buildPIDManager(cfg, log, records, parents, rdb)
	if err != nil {
		return err
	}

	policies := policy.NewEvaluator(
		[]policy.Policy{policy.GracePeriodPolicy{Period: cfg.Lifecycle.GracePeriod}},
		[]policy.Policy{policy.RequestDeletionPolicy{}},
	)

	svc := service.New(
		records, parents, chain, policies, manager,
		outbox.NewPostgresEnqueuer(db), tx.NewSQLRunner(db),
		service.Config{
			RequireCommunity:        cfg.Lifecycle.RequireCommunity,
			RequiredSchemes:         cfg.Lifecycle.RequiredSchemes,
			RemovalReasonVocabulary: cfg.Lifecycle.RemovalReasonVocabulary,
		},
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	)

	tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "curator", "curator-api")
	deps := httptransport.Dependencies{
		Logger:         log,
		Records:        handler.New(svc, log),
		TokenValidator: jwttoken.NewJWTServiceAdapter(tokens),
		DB:             db,
	}
	if rdb != nil {
		deps.Redis = rdb
	}

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(deps))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
