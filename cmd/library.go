package cmd

import (
	"context"
	"fmt"

	"photo-library/core/cache"
	"photo-library/core/config"
	"photo-library/core/database"
	"photo-library/core/logger"
	"photo-library/core/metrics"
	"photo-library/core/storage"
	"photo-library/core/stream"
	"photo-library/feature/library"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the connections shared by the commands.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *gorm.DB
	storage  storage.Client
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Engine
}

// bootstrap loads the configuration and connects the backends it selects.
// The database and object storage are optional: a failure only disables the
// sources and cache backends that need them.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logg}

	if cfg.Library.HasSource(library.SourceStore) {
		if db, err := database.Connect(cfg.Database); err != nil {
			logg.Warn("Optional database connection failed", zap.Error(err))
		} else {
			rt.db = db
			logg.Info("Connected to photo catalogue", zap.String("driver", cfg.Database.Driver))
		}
	}

	if cfg.Library.HasSource(library.SourceBucket) || cfg.Cache.Backend == "storage" {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket); err != nil {
			logg.Warn("Object storage unavailable", zap.Error(err))
		} else {
			rt.storage = client
		}
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = metrics.New(rt.registry)

	return rt, nil
}

// artifacts builds the artifact cache selected by cache.backend.
func (rt *runtime) artifacts(ctx context.Context) (cache.ArtifactCache, error) {
	cfg := rt.cfg.Cache
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryArtifacts(), nil
	case "storage":
		if rt.storage == nil {
			rt.logger.Warn("Storage artifact cache unavailable, thumbnails will not be evicted")
			return nil, nil
		}
		return cache.NewStorageArtifacts(rt.storage, rt.cfg.Storage.Bucket, cfg.Prefix), nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.redis = client
		return cache.NewRedisArtifacts(client, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// library wires the library service. consumer may be nil.
func (rt *runtime) library(ctx context.Context, consumer stream.Consumer) (*library.Service, error) {
	artifacts, err := rt.artifacts(ctx)
	if err != nil {
		return nil, err
	}

	deps := library.Deps{
		Fs:        afero.NewOsFs(),
		Storage:   rt.storage,
		Bucket:    rt.cfg.Storage.Bucket,
		Artifacts: artifacts,
		Metrics:   rt.metrics,
		Logger:    rt.logger,
		Consumer:  consumer,
	}
	if rt.db != nil {
		deps.Store = library.NewStore(rt.db, rt.logger)
	}

	return library.NewService(rt.cfg.Library, rt.cfg.Stream, rt.cfg.Cache, deps)
}

// close releases the connections opened by bootstrap and artifacts.
func (rt *runtime) close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = rt.logger.Sync()
}
