package library

import (
	"context"
	"errors"

	"photo-library/core/stream"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	cfg     Config
	service *Service
	handler *Handler
	watcher *Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewFeature creates the library feature on top of an existing service.
func NewFeature(cfg Config, service *Service) *Feature {
	return &Feature{
		cfg:     cfg,
		service: service,
		handler: NewHandler(service),
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "library"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.cfg.Enabled
}

// Load registers the routes, starts the engine and the optional watcher, and
// begins the first load.
func (f *Feature) Load(app fiber.Router) error {
	f.ctx, f.cancel = context.WithCancel(context.Background())

	if store := f.service.deps.Store; store != nil {
		if err := store.Prepare(f.ctx); err != nil {
			f.cancel()
			return err
		}
	}

	f.handler.RegisterRoutes(app)
	f.service.Start(f.ctx)

	if f.cfg.Watch && f.cfg.HasSource(SourceScan) && f.service.deps.Fs != nil {
		w, err := NewWatcher(f.cfg.Root, f.cfg.WatchDebounce, f.refresh, f.service.logger)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			f.service.logger.Warn("Library watcher disabled", zap.Error(err))
		} else {
			f.watcher = w
		}
	}

	if f.cfg.LoadOnStart {
		if _, err := f.service.Load(f.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feature) refresh() {
	err := f.service.Refresh(f.ctx)
	if err != nil && !errors.Is(err, stream.ErrClosed) && !errors.Is(err, context.Canceled) {
		f.service.logger.Warn("Watcher refresh failed", zap.Error(err))
	}
}

// Close stops the watcher and the engine.
func (f *Feature) Close() error {
	var err error
	if f.watcher != nil {
		err = f.watcher.Stop()
	}
	if f.cancel != nil {
		f.cancel()
	}
	return errors.Join(err, f.service.Close())
}
