package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/gabarito/internal/answerkey"
	api "github.com/mind-engage/gabarito/internal/api/http"
	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/config"
	"github.com/mind-engage/gabarito/internal/correction"
	"github.com/mind-engage/gabarito/internal/db"
	"github.com/mind-engage/gabarito/internal/detect"
	"github.com/mind-engage/gabarito/internal/eventlog"
	"github.com/mind-engage/gabarito/internal/metrics"
	"github.com/mind-engage/gabarito/internal/storage"
	"github.com/mind-engage/gabarito/internal/users"
)

const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	m := metrics.New()

	// --- Detector: engine -> instrumentation -> optional cache ---
	detector := detect.Instrument(newEngine(cfg.Detector), cfg.Detector.Engine, logger, m)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable; detections will not be cached until it recovers",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()
		detector = detect.NewCachedDetector(detector, detect.NewRedisCache(rdb, cfg.DetectionCacheTTL),
			cfg.Detector.Engine, logger, m)
	}

	keys := answerkey.NewService(answerkey.NewSQLStore(dbh))
	corrections := correction.NewService(keys, bs, detector, eventlog.NewRepo(dbh),
		correction.WithLogger(logger),
		correction.WithMetrics(m),
		correction.WithParallelism(cfg.BatchParallelism),
	)

	handler := api.NewRouter(api.Deps{
		Logger:            logger,
		Auth:              auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		Users:             users.NewStore(dbh),
		AnswerKeys:        keys,
		Corrections:       corrections,
		Blobs:             bs,
		Metrics:           m,
		DB:                dbh,
		CORSOrigins:       cfg.CORSOrigins,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowRoleFallback: cfg.Mode == config.ModeOffline,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.String("detector", cfg.Detector.Engine))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
