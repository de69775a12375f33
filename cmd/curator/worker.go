package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"curator/internal/outbox"
	"curator/internal/platform/config"
	"curator/internal/platform/httpserver"
	"curator/internal/platform/logger"
	"curator/internal/platform/postgres"
	redisplatform "curator/internal/platform/redis"
	"curator/internal/record/store"
)

var workerMetricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the identifier reconciliation worker",
	Long: `The worker drains pending registration jobs from the outbox into
Kafka and consumes them, registering or updating identifiers with their
providers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", ":9090", "address for the metrics endpoint")
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("curator-worker")

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	producer, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
	if err != nil {
		return err
	}
	defer producer.Close()

	if err := outbox.EnsureTopic(ctx, producer, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
		return err
	}

	consumerClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return err
	}
	defer consumerClient.Close()

	manager, err := buildPIDManager(cfg, log,
		store.NewPostgresRecordStore(db), store.NewPostgresParentStore(db), rdb)
	if err != nil {
		return err
	}

	obMetrics := outbox.NewMetrics()
	relay := outbox.NewRelay(
		outbox.NewPostgresClaimStore(pool), producer, cfg.Kafka.Topic,
		outbox.WithRelayLogger(log),
		outbox.WithRelayMetrics(obMetrics),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)
	consumer := outbox.NewConsumer(consumerClient, manager,
		outbox.WithConsumerLogger(log),
		outbox.WithConsumerMetrics(obMetrics),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(workerMetricsAddr, metricsMux)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting outbox relay", "topic", cfg.Kafka.Topic)
		return relay.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting job consumer", "group", cfg.Kafka.ConsumerGroup)
		return consumer.Run(ctx)
	})
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
