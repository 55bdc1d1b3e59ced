package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"photo-library/core/record"
	"photo-library/feature/library/models"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type scanResult struct {
	rec record.Record
	err error
}

// ScanSource walks the library root and emits one record per photo file.
// Walk order is lexical, not presentation order, so the source is unsorted.
type ScanSource struct {
	fs     afero.Fs
	root   string
	exts   map[string]struct{}
	logger *zap.Logger

	mu      sync.Mutex
	results chan scanResult
	cancel  context.CancelFunc
	done    bool
}

// NewScanSource creates a scanner over root on fs. An empty extension list
// accepts every file.
func NewScanSource(fs afero.Fs, root string, extensions []string, logger *zap.Logger) *ScanSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &ScanSource{fs: fs, root: root, exts: exts, logger: logger}
}

func (s *ScanSource) Name() string { return SourceScan }
func (s *ScanSource) Sorted() bool { return false }

func (s *ScanSource) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// Reset stops a walk in progress; the next FetchNext starts over.
func (s *ScanSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.results = nil
	s.cancel = nil
	s.done = false
}

// FetchNext returns up to limit photos, starting the walk on first use. The
// walk stops with ctx.
func (s *ScanSource) FetchNext(ctx context.Context, limit int) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, nil
	}
	if s.results == nil {
		walkCtx, cancel := context.WithCancel(ctx)
		s.results = make(chan scanResult, limit)
		s.cancel = cancel
		go s.walk(walkCtx, s.results)
	}
	results := s.results
	s.mu.Unlock()

	var page []record.Record
	for len(page) < limit {
		select {
		case r, ok := <-results:
			if !ok {
				// A canceled walk closes the channel early.
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				s.finish(results)
				return page, nil
			}
			if r.err != nil {
				s.finish(results)
				return nil, r.err
			}
			page = append(page, r.rec)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return page, nil
}

// finish marks the source exhausted unless a Reset replaced results meanwhile.
func (s *ScanSource) finish(results chan scanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results != results {
		return
	}
	s.done = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *ScanSource) walk(ctx context.Context, out chan<- scanResult) {
	defer close(out)

	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.root {
				return err
			}
			s.logger.Warn("Skipping unreadable path", zap.String("path", path), zap.Error(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if path != s.root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.accepts(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		photo := models.Photo{
			Path:    record.NormalizeIdentity(rel),
			TakenAt: info.ModTime().UTC(),
			ModTime: info.ModTime().UTC(),
			Size:    info.Size(),
		}
		rec := photo.Record()
		rec.SourceTag = SourceScan

		select {
		case out <- scanResult{rec: rec}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		select {
		case out <- scanResult{err: fmt.Errorf("failed to scan %s: %w", s.root, err)}:
		case <-ctx.Done():
		}
	}
}

func (s *ScanSource) accepts(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(s.exts) == 0 {
		return true
	}
	_, ok := s.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}
