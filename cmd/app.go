package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/config"
	"github.com/example/selfie-check/internal/logging"
	"github.com/example/selfie-check/internal/session"
)

// app holds what every command needs: config, logger and client storage.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *session.Store
	closers []io.Closer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	kv, closer, err := openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  session.NewStore(kv, cfg.Storage.Prefix, logger),
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	logger.Info("client storage ready", zap.String("driver", cfg.Storage.Driver))
	return a, nil
}

func (a *app) backendClient() (*backend.HTTPClient, error) {
	if err := a.cfg.RequireBackend(); err != nil {
		return nil, err
	}
	return backend.NewHTTPClient(a.cfg.Backend.URL, a.cfg.Backend.Timeout, a.logger)
}

// Close releases storage connections. Every closer runs even if an earlier one fails.
func (a *app) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	_ = a.logger.Sync() //nolint:errcheck
	return err
}

func openStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (session.KV, io.Closer, error) {
	switch cfg.Driver {
	case config.StorageRedis:
		return openRedis(ctx, cfg, logger)
	case config.StoragePostgres:
		return openPostgres(ctx, cfg, logger)
	default:
		values := map[string]string{}
		if cfg.Username != "" {
			values[cfg.Prefix+session.UsernameKey] = cfg.Username
		}
		if cfg.Token != "" {
			values[cfg.Prefix+session.TokenKey] = cfg.Token
		}
		return session.NewMemoryKV(values), nil, nil
	}
}

func openRedis(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (session.KV, io.Closer, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	kv := session.NewRedisKV(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	if err := kv.Ping(pingCtx); err != nil {
		wrapped := logging.NewOperationError("storage.redis_ping", "", err)
		logger.Error("redis connection failed", zap.Error(wrapped), zap.String("addr", cfg.RedisAddr))
		return nil, nil, multierr.Append(wrapped, kv.Close())
	}
	return kv, kv, nil
}

func openPostgres(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (session.KV, io.Closer, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		wrapped := logging.NewOperationError("storage.postgres_open", "", err)
		logger.Error("failed to connect to database", zap.Error(wrapped))
		return nil, nil, wrapped
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, logging.NewOperationError("storage.postgres_handle", "", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	kv := session.NewPostgresKV(db)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := kv.Ping(pingCtx); err != nil {
		wrapped := logging.NewOperationError("storage.postgres_ping", "", err)
		logger.Error("database ping failed", zap.Error(wrapped))
		return nil, nil, multierr.Append(wrapped, kv.Close())
	}
	if err := kv.AutoMigrate(ctx); err != nil {
		wrapped := logging.NewOperationError("storage.postgres_migrate", "", err)
		logger.Error("auto migrate failed", zap.Error(wrapped))
		return nil, nil, multierr.Append(wrapped, kv.Close())
	}
	return kv, kv, nil
}
