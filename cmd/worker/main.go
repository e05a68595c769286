package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/trueframe/trueframe-analysis-service/internal/infra/archive"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/config"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/email"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/ffmpeg"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/metrics"
	miniostorage "github.com/trueframe/trueframe-analysis-service/internal/infra/minio"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/openai"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/postgres"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/rabbitmq"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/tracing"
	"github.com/trueframe/trueframe-analysis-service/internal/usecase"
	"github.com/trueframe/trueframe-analysis-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting trueframe-analysis-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	// Starting without the schema would just fail every message, so a
	// migration error is fatal like the other boot steps.
	fatalOnErr(postgres.RunMigrations(cfg.DatabaseURL, "migrations"), "run migrations")

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     cfg.MinIOEndpoint,
		AccessKey:    cfg.MinIOAccessKey,
		SecretKey:    cfg.MinIOSecretKey,
		UseSSL:       cfg.MinIOUseSSL,
		UploadBucket: cfg.MinIOUploadBucket,
		ReportBucket: cfg.MinIOReportBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Inference gateway; a missing API key aborts here, before any
	// submission is consumed.
	gateway, err := openai.NewGateway(openai.Config{
		Endpoint: cfg.OpenAIEndpoint,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.OpenAIModel,
		Timeout:  time.Duration(cfg.InferenceTimeoutSec) * time.Second,
	}, log)
	fatalOnErr(err, "create inference gateway")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Infra adapters
	repo := postgres.NewJobRepository(pool)
	sampler := ffmpeg.NewSampler(time.Duration(cfg.SeekTimeoutSec)*time.Second, log)
	bundler := archive.NewEvidenceBundler()
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	// Use case
	uc := usecase.NewAnalyzeVideoUseCase(
		repo, storage, sampler, gateway, bundler,
		statusPub, dlqPub, notifier,
		log,
		usecase.AnalyzeVideoConfig{
			TempDir:     cfg.TempDir,
			SampleCount: cfg.SampleCount,
			StaleAfter:  time.Duration(cfg.JobStaleAfterSec) * time.Second,
		},
	)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQRequestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("trueframe-analysis-service started, consuming submissions")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("trueframe-analysis-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
