package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/transcribeflow/internal/dispatch"
	"github.com/your-org/transcribeflow/pkg/config"
	"github.com/your-org/transcribeflow/pkg/jobstore"
	"github.com/your-org/transcribeflow/pkg/kafka"
	"github.com/your-org/transcribeflow/pkg/logger"
	"github.com/your-org/transcribeflow/pkg/metrics"
	"github.com/your-org/transcribeflow/pkg/storage/objectstore"
	"github.com/your-org/transcribeflow/pkg/tracing"
	"github.com/your-org/transcribeflow/pkg/transcribe"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := jobstore.NewPostgres(ctx, jobstore.PostgresConfig{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ApplicationName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init job store", zap.Error(err))
	}
	defer store.Close()

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			logr.Fatal("migrate job store", zap.Error(err))
		}
	}

	submitter := transcribe.NewClient(transcribe.Config{
		BaseURL:      cfg.Transcribe.BaseURL,
		APIKey:       cfg.Transcribe.APIKey,
		LanguageCode: cfg.Transcribe.LanguageCode,
		OutputPrefix: cfg.Transcribe.OutputPrefix,
		Timeout:      cfg.Transcribe.Timeout,
	}, logr)

	var inputChecker dispatch.InputChecker
	if cfg.Dispatch.VerifyInput {
		checker, err := objectstore.New(objectstore.Config{
			Provider:  cfg.Storage.Provider,
			Endpoint:  cfg.Storage.Endpoint,
			Region:    cfg.Storage.Region,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logr.Fatal("init object store", zap.Error(err))
		}
		defer checker.Close() //nolint:errcheck
		inputChecker = checker
	}

	coordinator := dispatch.NewCoordinator(dispatch.CoordinatorParams{
		Store:        store,
		Submitter:    submitter,
		InputChecker: inputChecker,
		Fingerprinter: dispatch.Fingerprinter{
			Scope:  dispatch.Scope(cfg.Dispatch.FingerprintScope),
			Hashed: cfg.Dispatch.HashFingerprints,
		},
		Logger: logr,
	})

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topics:  []string{cfg.Kafka.EventsTopic, cfg.Kafka.RetryTopic},
		GroupID: cfg.Kafka.GroupID,
		MaxWait: cfg.Kafka.FetchMaxWait,
	})
	defer consumer.Close() //nolint:errcheck

	retryProducer := newProducer(cfg, cfg.Kafka.RetryTopic)
	defer retryProducer.Close(context.Background()) //nolint:errcheck
	dlqProducer := newProducer(cfg, cfg.Kafka.DeadLetterTopic)
	defer dlqProducer.Close(context.Background()) //nolint:errcheck

	runner := dispatch.NewRunner(dispatch.RunnerParams{
		Consumer:    consumer,
		Retry:       retryProducer,
		DeadLetter:  dlqProducer,
		Coordinator: coordinator,
		Metrics:     metrics.NewDispatch(),
		Logger:      logr,
		BatchSize:   cfg.Dispatch.IntakeBatchSize,
		BatchWait:   cfg.Dispatch.IntakeBatchWait,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
	})

	handler := dispatch.NewHTTPHandler(logr, func(ctx context.Context) error {
		_, err := store.Exists(ctx, "readiness-probe")
		return err
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logr.Info("admin server starting", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("admin server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("admin server shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("dispatch worker starting",
		zap.String("events_topic", cfg.Kafka.EventsTopic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)
	if err := runner.Run(ctx); err != nil {
		logr.Fatal("dispatch worker failed", zap.Error(err))
	}
	logr.Info("dispatch worker stopped")
}

func newProducer(cfg *config.Config, topic string) *kafka.Producer {
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        topic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
