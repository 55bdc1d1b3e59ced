package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"photo-library/core/cache"
	"photo-library/core/metrics"
	"photo-library/core/reconcile"
	"photo-library/core/record"
	"photo-library/core/storage"
	"photo-library/core/stream"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators of a Service. Every field is optional; a source
// whose backend is missing is left out.
type Deps struct {
	Store     *Store
	Fs        afero.Fs
	Storage   storage.Client
	Bucket    string
	Artifacts cache.ArtifactCache
	Metrics   *metrics.Engine
	Logger    *zap.Logger
	// Consumer receives a copy of every engine notification.
	Consumer stream.Consumer
}

// Status describes the library as last reported by the engine.
type Status struct {
	Epoch       stream.Epoch       `json:"epoch"`
	Loading     bool               `json:"loading"`
	Count       int                `json:"count"`
	Progress    int                `json:"progress"`
	Total       int                `json:"total"`
	Stashed     int                `json:"stashed"`
	Sources     []string           `json:"sources"`
	LastOutcome string             `json:"last_outcome,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	LastPatch   *reconcile.Summary `json:"last_patch,omitempty"`
	Patches     int                `json:"patches"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Service is the photo library: it owns the stream loop, the cache
// coordinator and the snapshot loader, and tracks engine notifications.
type Service struct {
	cfg         Config
	deps        Deps
	logger      *zap.Logger
	loop        *stream.Loop
	coordinator *cache.Coordinator
	snapshots   *reconcile.SnapshotLoader
	exclude     string

	mu      sync.RWMutex
	status  Status
	loaded  chan struct{}
	patched chan struct{}
	started bool
	closed  bool
}

// NewService wires a library service. Call Start before loading.
func NewService(cfg Config, streamCfg stream.Config, cacheCfg cache.Config, deps Deps) (*Service, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.With(zap.String("feature", "library"))

	coordinator, err := cache.NewCoordinator(cacheCfg, deps.Artifacts, logger, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache coordinator: %w", err)
	}

	s := &Service{
		cfg:         cfg,
		deps:        deps,
		logger:      logger,
		coordinator: coordinator,
		exclude:     cacheCfg.Prefix,
		loaded:      make(chan struct{}),
		patched:     make(chan struct{}),
	}
	close(s.loaded)

	sources := s.sources()
	if len(sources) == 0 {
		logger.Warn("No photo sources available", zap.Strings("configured", cfg.Sources))
	}
	for _, src := range sources {
		s.status.Sources = append(s.status.Sources, src.Name())
	}

	s.snapshots = reconcile.NewSnapshotLoader("library", cfg.SnapshotTTL, s.fetchSnapshot)
	s.loop = stream.NewLoop(streamCfg, stream.Options{
		Sources:    sources,
		Consumer:   s,
		Hooks:      coordinator,
		Comparator: PhotoComparator,
		Snapshots:  s.snapshots,
		Metrics:    deps.Metrics,
		Logger:     logger,
	})
	return s, nil
}

// sources builds a fresh instance of every enabled source whose backend is
// available, store first.
func (s *Service) sources() []stream.Source {
	var out []stream.Source
	if s.cfg.HasSource(SourceStore) && s.deps.Store != nil {
		out = append(out, NewStoreSource(s.deps.Store))
	}
	if s.cfg.HasSource(SourceScan) && s.deps.Fs != nil {
		out = append(out, NewScanSource(s.deps.Fs, s.cfg.Root, s.cfg.Extensions, s.logger))
	}
	if s.cfg.HasSource(SourceBucket) && s.deps.Storage != nil && s.deps.Bucket != "" {
		out = append(out, NewBucketSource(s.deps.Storage, s.deps.Bucket, s.cfg.BucketPrefix, s.exclude, s.cfg.Extensions, s.logger))
	}
	return out
}

// fetchSnapshot reads every source to the end on instances of its own and
// merges them. On duplicate paths the earlier source wins.
func (s *Service) fetchSnapshot(ctx context.Context) ([]record.Record, error) {
	sources := s.sources()
	pages := make([][]record.Record, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			for src.HasMore() {
				page, err := src.FetchNext(gctx, 500)
				if err != nil {
					return fmt.Errorf("%s: %w", src.Name(), err)
				}
				if len(page) == 0 {
					break
				}
				pages[i] = append(pages[i], page...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merge := stream.NewMergeEngine(s.logger)
	for i, src := range sources {
		merge.AddSource(src.Name(), src.Sorted())
		merge.PushChunk(src.Name(), pages[i])
		merge.MarkExhausted(src.Name())
	}
	return merge.PopNext(merge.Pending()), nil
}

// Store returns the catalogue, or nil when the service runs without one.
func (s *Service) Store() *Store {
	return s.deps.Store
}

// Start launches the engine and the background artifact worker.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.coordinator.Start(ctx)
	s.loop.Start(ctx)
}

// Close stops the engine and drains pending artifact operations.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.loop.Stop()
	s.coordinator.Stop()
	return nil
}

// Load starts a full load and returns its epoch.
func (s *Service) Load(ctx context.Context) (stream.Epoch, error) {
	s.mu.Lock()
	select {
	case <-s.loaded:
		s.loaded = make(chan struct{})
	default:
	}
	s.mu.Unlock()

	s.coordinator.ForgetCarried()
	epoch, err := s.loop.StartLoad(ctx)
	if err != nil {
		s.mu.Lock()
		select {
		case <-s.loaded:
		default:
			close(s.loaded)
		}
		s.mu.Unlock()
		return 0, err
	}
	s.logger.Debug("Load requested", zap.Uint64("epoch", uint64(epoch)))
	return epoch, nil
}

// WaitLoaded blocks until the latest load has finished.
func (s *Service) WaitLoaded(ctx context.Context) error {
	s.mu.RLock()
	ch := s.loaded
	s.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh fetches a fresh snapshot and patches the library with it. The
// cached snapshot is dropped first so the result reflects current state.
func (s *Service) Refresh(ctx context.Context) error {
	s.snapshots.Invalidate()
	return s.loop.Refresh(ctx)
}

// RefreshWait is Refresh that waits for the outcome. The returned patch is
// empty when the library was already current.
func (s *Service) RefreshWait(ctx context.Context) (reconcile.Patch, error) {
	s.snapshots.Invalidate()
	return s.loop.RefreshWait(ctx)
}

// Patched returns a channel closed by the next applied refresh patch.
func (s *Service) Patched() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patched
}

// Plan computes the patch a refresh would apply now without applying it.
func (s *Service) Plan(ctx context.Context) (reconcile.Patch, error) {
	view, err := s.loop.View(ctx)
	if err != nil {
		return reconcile.Patch{}, err
	}
	snap, err := s.fetchSnapshot(ctx)
	if err != nil {
		return reconcile.Patch{}, err
	}
	return reconcile.Diff(view.Records, snap, reconcile.Options{Comparator: PhotoComparator}), nil
}

// Page returns a window of the library in presentation order.
func (s *Service) Page(ctx context.Context, offset, limit int) (stream.View, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	return s.loop.Page(ctx, offset, limit)
}

// Lookup returns the photo at path.
func (s *Service) Lookup(ctx context.Context, path string) (record.Record, error) {
	rec, ok, err := s.loop.Lookup(ctx, record.NormalizeIdentity(path))
	if err != nil {
		return record.Record{}, err
	}
	if !ok {
		return record.Record{}, ErrNotFound
	}
	return rec, nil
}

// Stashed returns the last known state of a recently removed photo.
func (s *Service) Stashed(path string) (cache.StashEntry, error) {
	entry, ok := s.coordinator.LookupStashed(record.NormalizeIdentity(path))
	if !ok {
		return cache.StashEntry{}, ErrNotFound
	}
	return entry, nil
}

// StashEntries lists recently removed photos, oldest first.
func (s *Service) StashEntries() []cache.StashEntry {
	return s.coordinator.StashEntries()
}

// Move renames a photo in the catalogue and on disk, carries its artifact
// over and refreshes the library.
func (s *Service) Move(ctx context.Context, from, to string) error {
	if s.deps.Store == nil {
		return ErrNoStore
	}
	from = record.NormalizeIdentity(from)
	to = record.NormalizeIdentity(to)

	if err := s.deps.Store.Move(ctx, from, to); err != nil {
		return err
	}
	if err := s.moveFile(from, to); err != nil {
		return err
	}
	s.coordinator.Migrate(from, to)

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, stream.ErrNoSnapshots) {
		return err
	}
	return nil
}

func (s *Service) moveFile(from, to string) error {
	if s.deps.Fs == nil || !s.cfg.HasSource(SourceScan) {
		return nil
	}
	src := filepath.Join(s.cfg.Root, filepath.FromSlash(from))
	dst := filepath.Join(s.cfg.Root, filepath.FromSlash(to))
	if _, err := s.deps.Fs.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := s.deps.Fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := s.deps.Fs.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s: %w", from, err)
	}
	return nil
}

// Status returns the current library status.
func (s *Service) Status(ctx context.Context) (Status, error) {
	view, err := s.loop.Page(ctx, 0, 0)
	if err != nil {
		return Status{}, err
	}

	s.mu.RLock()
	st := s.status
	s.mu.RUnlock()

	st.Epoch = view.Epoch
	st.Loading = view.Loading
	st.Count = view.Total
	st.Stashed = len(s.coordinator.StashEntries())
	return st, nil
}

// OnBatch implements stream.Consumer.
func (s *Service) OnBatch(records []record.Record, first bool) {
	s.mu.Lock()
	if first {
		s.status.LastError = ""
	}
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		s.deps.Consumer.OnBatch(records, first)
	}
}

// OnProgress implements stream.Consumer.
func (s *Service) OnProgress(current, total int) {
	s.mu.Lock()
	s.status.Progress = current
	s.status.Total = total
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		s.deps.Consumer.OnProgress(current, total)
	}
}

// OnFinished implements stream.Consumer. WaitLoaded returns only after the
// external consumer has seen the event.
func (s *Service) OnFinished(success bool) {
	s.mu.Lock()
	s.status.LastOutcome = "success"
	if !success {
		s.status.LastOutcome = "failure"
	}
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		s.deps.Consumer.OnFinished(success)
	}

	s.mu.Lock()
	select {
	case <-s.loaded:
	default:
		close(s.loaded)
	}
	s.mu.Unlock()
}

// OnError implements stream.Consumer.
func (s *Service) OnError(message string) {
	s.mu.Lock()
	s.status.LastError = message
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		s.deps.Consumer.OnError(message)
	}
}

// OnPatch implements stream.Consumer.
func (s *Service) OnPatch(patch reconcile.Patch) {
	summary := patch.Summary()

	s.mu.Lock()
	s.status.LastPatch = &summary
	s.status.Patches++
	s.status.UpdatedAt = time.Now()
	close(s.patched)
	s.patched = make(chan struct{})
	s.mu.Unlock()

	if s.deps.Consumer != nil {
		s.deps.Consumer.OnPatch(patch)
	}
}
