package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"simple-bank/internal/auth"
	"simple-bank/internal/backup"
	"simple-bank/internal/config"
	apphttp "simple-bank/internal/http"
	"simple-bank/internal/idempotency"
	"simple-bank/internal/repository"
	"simple-bank/internal/repository/mongodb"
	"simple-bank/internal/repository/postgres"
	"simple-bank/internal/repository/sqlite"
	"simple-bank/internal/service"
	"simple-bank/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, closeStore, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open record store: %v", err)
	}
	defer closeStore()

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	accounts := service.NewAccountService(userRepo, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens, logger)

	idem, closeIdem, err := buildIdempotencyStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup idempotency store: %v", err)
	}
	defer closeIdem()

	var scheduler backup.Scheduler
	if cfg.Backup.Bucket != "" {
		scheduler, err = buildBackups(ctx, cfg, userRepo, logger)
		if err != nil {
			logger.Fatalf("setup backups: %v", err)
		}
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatalf("start backups: %v", err)
		}
	} else {
		logger.Info("backups disabled, no bucket configured")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(accounts, tokens, idem, apphttp.Options{
		RequireToken: cfg.Auth.RequireToken,
		Logger:       logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}

	logger.Info("bye")
}

// buildRepository opens the configured record store and returns the repository
// with a function that releases the store handle.
func buildRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (repository.UserRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres record store")
		return postgres.NewUserRepository(pool), pool.Close, nil
	case "mongo":
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using mongo record store (database %s)", cfg.Mongo.Database)
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warnf("mongo disconnect: %v", err)
			}
		}
		return mongodb.NewUserRepository(client, cfg.Mongo.Database), closeFn, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using sqlite record store at %s", cfg.Database.Path)
		return sqlite.NewUserRepository(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func buildIdempotencyStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (idempotency.Store, func(), error) {
	ttl := time.Duration(cfg.Idempotency.TTLMinutes) * time.Minute
	if cfg.Redis.Addr == "" {
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(ttl), func() {}, nil
	}

	rdb, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("using redis idempotency store at %s", cfg.Redis.Addr)
	return idempotency.NewRedisStore(rdb, ttl), func() { rdb.Close() }, nil
}

func buildBackups(ctx context.Context, cfg config.Config, records backup.RecordSource, logger *logrus.Logger) (backup.Scheduler, error) {
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Region:   cfg.Backup.Region,
		Endpoint: cfg.Backup.Endpoint,
		Profile:  cfg.AWS.Profile,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("using s3 bucket %s (region %s) for backups", cfg.Backup.Bucket, cfg.Backup.Region)

	return backup.NewScheduler(backup.Config{
		Bucket:    cfg.Backup.Bucket,
		KeyPrefix: cfg.Backup.KeyPrefix,
		Interval:  time.Duration(cfg.Backup.IntervalMinutes) * time.Minute,
		Retain:    cfg.Backup.Retain,
		Logger:    logger,
	}, records, storage.NewS3Service(client)), nil
}
