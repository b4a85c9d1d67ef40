// Package main wires together the fog monitoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/coastalfog/fogwatch/internal/api"
	"github.com/coastalfog/fogwatch/internal/clock/system"
	"github.com/coastalfog/fogwatch/internal/config"
	"github.com/coastalfog/fogwatch/internal/directory"
	"github.com/coastalfog/fogwatch/internal/fetcher/discover"
	"github.com/coastalfog/fogwatch/internal/fetcher/snapshot"
	"github.com/coastalfog/fogwatch/internal/fog"
	"github.com/coastalfog/fogwatch/internal/id/uuid"
	"github.com/coastalfog/fogwatch/internal/labeler"
	"github.com/coastalfog/fogwatch/internal/labeler/vision"
	"github.com/coastalfog/fogwatch/internal/logging"
	"github.com/coastalfog/fogwatch/internal/metrics"
	"github.com/coastalfog/fogwatch/internal/pipeline"
	memorypublisher "github.com/coastalfog/fogwatch/internal/publisher/memory"
	pubsubpublisher "github.com/coastalfog/fogwatch/internal/publisher/pubsub"
	"github.com/coastalfog/fogwatch/internal/refresh"
	"github.com/coastalfog/fogwatch/internal/schedule"
	gcsstorage "github.com/coastalfog/fogwatch/internal/storage/gcs"
	memorystorage "github.com/coastalfog/fogwatch/internal/storage/memory"
	postgresstorage "github.com/coastalfog/fogwatch/internal/storage/postgres"
)

const userAgent = "fogwatch/1.0"

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Missing .env is fine; config falls back to real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	store, storeCleanup, err := buildCollectionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("collection store init failed", zap.Error(err))
	}
	defer storeCleanup()

	dir, dirCleanup, err := buildDirectory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("directory init failed", zap.Error(err))
	}
	defer dirCleanup()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, pubCleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer pubCleanup()

	var renderer discover.Renderer
	if cfg.Discovery.RenderEnabled {
		chromeRenderer, err := discover.NewChromedpRenderer(discover.RenderConfig{
			MaxParallel:       cfg.Discovery.RenderMaxParallel,
			UserAgent:         userAgent,
			NavigationTimeout: time.Duration(cfg.Discovery.RenderTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			renderer = chromeRenderer
			defer chromeRenderer.Close()
		}
	}
	discoverer := discover.New(discover.Config{
		PlayerURLTemplate: cfg.Discovery.PlayerURLTemplate,
		Timeout:           time.Duration(cfg.Discovery.ProbeTimeoutSeconds) * time.Second,
		UserAgent:         userAgent,
	}, renderer, logger.Named("discover"))

	fetcher := snapshot.New(snapshot.Config{
		Timeout:      time.Duration(cfg.Pipeline.FetchTimeoutSeconds) * time.Second,
		ProbeTimeout: time.Duration(cfg.Discovery.ProbeTimeoutSeconds) * time.Second,
		UserAgent:    userAgent,
	}, discoverer, dir, clock, logger.Named("fetch"))

	visionClient, err := vision.NewHTTPClient(vision.Config{
		BaseURL: cfg.Vision.BaseURL,
		APIKey:  cfg.Vision.APIKey,
		Model:   cfg.Vision.Model,
		Timeout: time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Fatal("vision client init failed", zap.Error(err))
	}
	registry := labeler.NewRegistry(cfg.Labelers, visionClient, clock, logger.Named("labeler"))

	orchestrator := pipeline.New(
		dir,
		fetcher,
		registry,
		blobs,
		store,
		publisher,
		clock,
		idGen,
		pipeline.Config{
			Concurrency:  cfg.Pipeline.Concurrency,
			FetchTimeout: time.Duration(cfg.Pipeline.FetchTimeoutSeconds) * time.Second,
			BlobPrefix:   cfg.Storage.Prefix,
			ContentType:  cfg.Storage.ContentType,
			Topic:        cfg.PubSub.TopicName,
		},
		logger.Named("pipeline"),
	)

	refreshLabeler, ok := registry.PreferredLabeler(cfg.Refresh.PreferredLabeler)
	if !ok {
		logger.Warn("no labelers available, refreshes will store unlabeled snapshots")
	}
	refresher := refresh.New(
		dir,
		fetcher,
		refreshLabeler,
		blobs,
		store,
		clock,
		idGen,
		refresh.Config{
			Staleness:    cfg.StalenessThreshold(),
			Lookback:     cfg.LookbackWindow(),
			FetchTimeout: time.Duration(cfg.Refresh.FetchTimeoutSeconds) * time.Second,
			BlobPrefix:   cfg.Storage.Prefix,
			ContentType:  cfg.Storage.ContentType,
		},
		logger.Named("refresh"),
	)

	scheduler := schedule.New(orchestrator, clock, schedule.Config{
		Interval:       time.Duration(cfg.Schedule.IntervalMinutes) * time.Minute,
		QuietStartHour: cfg.Schedule.QuietStartHour,
		QuietEndHour:   cfg.Schedule.QuietEndHour,
	}, logger.Named("schedule"))

	apiServer := api.NewServer(refresher, store, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildCollectionStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (fog.CollectionStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory collection store")
		return memorystorage.NewCollectionStore(), func() {}, nil
	}
	store, err := postgresstorage.New(ctx, postgresstorage.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildDirectory(ctx context.Context, cfg config.Config, logger *zap.Logger) (fog.Directory, func(), error) {
	var fallback fog.Directory
	if cfg.Directory.FallbackFile != "" {
		fileDir, err := directory.NewFile(cfg.Directory.FallbackFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load fallback directory: %w", err)
		}
		fallback = fileDir
	}
	if cfg.DB.DSN == "" {
		if fallback == nil {
			return nil, nil, fmt.Errorf("no directory source configured: set db.dsn or directory.fallback_file")
		}
		logger.Warn("no database configured, serving webcams from static file only")
		return fallback, func() {}, nil
	}
	primary, err := directory.NewPostgres(ctx, directory.PostgresConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	resolver := directory.NewResolver(primary, fallback, logger.Named("directory"))
	return resolver, primary.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (fog.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (fog.Publisher, func(), error) {
	switch cfg.PubSub.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { pub.Close() }, nil
	case "memory":
		return memorypublisher.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown pubsub provider %q", cfg.PubSub.Provider)
	}
}
