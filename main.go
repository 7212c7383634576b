package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/kopeknet/internal/auth"
	"github.com/example/kopeknet/internal/classifier"
	"github.com/example/kopeknet/internal/config"
	"github.com/example/kopeknet/internal/grpcclient"
	"github.com/example/kopeknet/internal/handlers"
	"github.com/example/kopeknet/internal/labels"
	"github.com/example/kopeknet/internal/logging"
	"github.com/example/kopeknet/internal/onnxmodel"
	"github.com/example/kopeknet/internal/repository"
	"github.com/example/kopeknet/internal/usecase"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewClassificationRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	defer redisClient.Close()

	loader, labelList, closeBackend, err := initModelBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize model backend", zap.Error(err), zap.String("backend", cfg.ModelBackend))
	}
	defer closeBackend.Close()

	pool := classifier.NewPool(loader, cfg.ModelPoolSize)
	defer pool.Close()

	c := classifier.New(pool, labelList, classifier.Options{
		StrictLabels:      cfg.StrictLabels,
		ReferenceTemplate: cfg.ReferenceTemplate,
	}, logger)
	uc := usecase.NewClassificationUseCase(repo, usecase.NewRedisCache(redisClient), c, cfg.ReferenceTemplate, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("KöpekNet API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", cfg.ModelBackend),
		zap.Int("labels", len(labelList)))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// initModelBackend returns the loader for the configured backend, the label
// list aligned with it, and a closer for backend-wide resources.
func initModelBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Loader, labels.List, io.Closer, error) {
	switch cfg.ModelBackend {
	case config.BackendGRPC:
		labelList, err := labels.LoadFile(cfg.LabelsPath)
		if err != nil {
			return nil, nil, nil, err
		}
		loader, conn, err := grpcclient.Dial(ctx, cfg.ScorerAddr, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return loader, labelList, conn, nil
	default:
		manifest, err := onnxmodel.LoadManifest(cfg.ModelManifest)
		if err != nil {
			return nil, nil, nil, err
		}
		labelsPath := manifest.LabelsPath
		if cfg.LabelsPath != "" {
			labelsPath = cfg.LabelsPath
		}
		labelList, err := labels.LoadFile(labelsPath)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(labelList) != manifest.Classes() {
			logger.Warn("label count differs from model output",
				zap.Int("labels", len(labelList)),
				zap.Int("classes", manifest.Classes()))
		}
		return onnxmodel.NewLoader(manifest, logger), labelList, closerFunc(onnxmodel.Shutdown), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
