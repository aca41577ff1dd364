package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/config"
	v1 "github.com/edupgarcia/bulk-processing/internal/controller/http/v1"
	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
	psqlRepo "github.com/edupgarcia/bulk-processing/internal/repository/psql"
	"github.com/edupgarcia/bulk-processing/internal/repository/rabbitmq"
	redisRepo "github.com/edupgarcia/bulk-processing/internal/repository/redis"
	s3Repo "github.com/edupgarcia/bulk-processing/internal/repository/s3"
	"github.com/edupgarcia/bulk-processing/pkg/client/psql"
	redisClient "github.com/edupgarcia/bulk-processing/pkg/client/redis"
	s3Client "github.com/edupgarcia/bulk-processing/pkg/client/s3"
)

const startupTimeout = 15 * time.Second

// Run connects the stage described by cfg to its dependencies and
// consumes until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger = logger.With(zap.String("stage", string(cfg.Stage)))

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	storageS3, err := s3Client.NewS3Client(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.UseSSL, cfg.S3.Region)
	if err != nil {
		return err
	}
	if ok, err := storageS3.BucketExists(startCtx, cfg.Bucket); err != nil {
		logger.Warn("Failed to check destination bucket", zap.String("bucket", cfg.Bucket), zap.Error(err))
	} else if !ok {
		logger.Warn("Destination bucket does not exist", zap.String("bucket", cfg.Bucket))
	}
	storage := s3Repo.NewS3Repo(storageS3)

	conn, err := amqp.Dial(cfg.RabbitMQ.ConnectionURL())
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	publisher, err := rabbitmq.NewRabbitPublisher(conn, cfg.Exchange, cfg.Topic)
	if err != nil {
		return fmt.Errorf("failed to init publisher: %w", err)
	}
	defer publisher.Close()

	checks := map[string]v1.HealthCheck{
		"rabbitmq": func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"s3": func(ctx context.Context) error {
			ok, err := storageS3.BucketExists(ctx, cfg.Bucket)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("bucket %s not found", cfg.Bucket)
			}
			return nil
		},
	}

	var (
		tracker      usecase.DeliveryTracker
		statusReader v1.StatusReader
		ledger       usecase.RunLedger
		runLister    v1.RunLister
	)

	if cfg.Redis.Enabled() {
		client, err := redisClient.NewRedisClient(startCtx, redisClient.Config{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		repo := redisRepo.NewRedisRepo(client)
		tracker, statusReader = repo, repo
		checks["redis"] = repo.Ping
		logger.Info("Redis delivery tracking enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.Database.Enabled() {
		db, err := psql.NewPostgresDB(startCtx, psql.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SslMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return err
		}
		defer psql.Close(db)

		repo := psqlRepo.NewGormRunRepo(db)
		if err := repo.Migrate(startCtx); err != nil {
			return err
		}
		ledger, runLister = repo, repo
		checks["database"] = func(ctx context.Context) error { return psql.Ping(ctx, db) }
		logger.Info("Run ledger enabled", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))
	}

	handler, err := newStageHandler(cfg, storage, publisher, logger)
	if err != nil {
		return err
	}
	runner := usecase.NewRunner(handler, ledger, tracker, cfg.MaxDeliveries, logger)

	consumer, err := rabbitmq.NewConsumer(conn, rabbitmq.Topology{
		Exchange:   cfg.Exchange,
		Queue:      cfg.Subscription,
		BindingKey: cfg.InputTopic,
	}, runner, cfg.Concurrency, cfg.ShutdownGrace, logger)
	if err != nil {
		return fmt.Errorf("failed to init consumer: %w", err)
	}
	defer consumer.Close()

	if cfg.StatusEnabled() {
		srv := newStatusServer(cfg, v1.NewStatusHandler(cfg.Stage, statusReader, runLister, checks))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to stop status server", zap.Error(err))
			}
		}()
		logger.Info("Status server listening", zap.String("addr", cfg.StatusAddr))
	}

	logger.Info("Worker started",
		zap.String("subscription", cfg.Subscription),
		zap.String("input_topic", cfg.InputTopic),
		zap.String("topic", cfg.Topic),
		zap.String("bucket", cfg.Bucket),
	)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	logger.Info("Worker stopped")
	return nil
}

func newStageHandler(cfg *config.Config, storage usecase.ObjectStorage, publisher usecase.Publisher, logger *zap.Logger) (usecase.StageHandler, error) {
	switch cfg.Stage {
	case entity.StageUnpack:
		return usecase.NewUnpackUseCase(storage, publisher, cfg.Bucket, cfg.ScratchDir, cfg.PrefixUnique, logger), nil
	case entity.StageTransform:
		return usecase.NewTransformUseCase(storage, publisher, cfg.Bucket, cfg.ParsePolicy, logger), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", cfg.Stage)
	}
}

func newStatusServer(cfg *config.Config, h *v1.StatusHandler) *http.Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)

	return &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
