package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"photo-library/core/database"
	"photo-library/core/record"
	"photo-library/feature/library/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistent photo catalogue.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a store on top of db.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Prepare creates the photos table when it is absent and refuses a table
// missing some of the columns the library reads.
func (s *Store) Prepare(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	missing, err := database.MissingColumns(db, models.Photo{}.TableName(), models.Columns)
	if err != nil {
		return err
	}

	switch {
	case len(missing) == 0:
		return nil
	case len(missing) == len(models.Columns):
		s.logger.Info("Creating photos table")
		if err := db.AutoMigrate(&models.Photo{}); err != nil {
			return fmt.Errorf("failed to create photos table: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: missing %s", ErrSchema, strings.Join(missing, ", "))
	}
}

// Save inserts or updates photos.
func (s *Store) Save(ctx context.Context, photos ...models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	for i := range photos {
		photos[i].Path = record.NormalizeIdentity(photos[i].Path)
		photos[i].TakenAt = photos[i].TakenAt.UTC()
		photos[i].ModTime = photos[i].ModTime.UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&photos).Error
	if err != nil {
		return fmt.Errorf("failed to save photos: %w", err)
	}
	return nil
}

// Count returns the number of catalogued photos.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Photo{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return int(n), nil
}

// Page returns up to limit photos following after in presentation order
// (taken_at descending, path ascending). A nil after starts at the top.
func (s *Store) Page(ctx context.Context, after *models.Photo, limit int) ([]models.Photo, error) {
	q := s.db.WithContext(ctx).Model(&models.Photo{})
	if after != nil {
		taken := after.TakenAt.UTC()
		q = q.Where("taken_at < ? OR (taken_at = ? AND path > ?)", taken, taken, after.Path)
	}

	var photos []models.Photo
	err := q.Order("taken_at DESC").Order("path ASC").Limit(limit).Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}
	return photos, nil
}

// Get returns the photo stored under path.
func (s *Store) Get(ctx context.Context, path string) (models.Photo, error) {
	var p models.Photo
	err := s.db.WithContext(ctx).Where("path = ?", record.NormalizeIdentity(path)).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Photo{}, ErrNotFound
	}
	if err != nil {
		return models.Photo{}, fmt.Errorf("failed to get photo %s: %w", path, err)
	}
	return p, nil
}

// Records returns the whole catalogue as records, in presentation order.
func (s *Store) Records(ctx context.Context) ([]record.Record, error) {
	var photos []models.Photo
	err := s.db.WithContext(ctx).Order("taken_at DESC").Order("path ASC").Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}
	recs := make([]record.Record, 0, len(photos))
	for _, p := range photos {
		rec := p.Record()
		rec.SourceTag = SourceStore
		recs = append(recs, rec)
	}
	return recs, nil
}

// Move renames a photo, keeping every other column.
func (s *Store) Move(ctx context.Context, oldPath, newPath string) error {
	oldPath = record.NormalizeIdentity(oldPath)
	newPath = record.NormalizeIdentity(newPath)
	if oldPath == "" || newPath == "" {
		return fmt.Errorf("move %q to %q: %w", oldPath, newPath, ErrNotFound)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Photo{}).Where("path = ?", newPath).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check move target: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("move to %s: %w", newPath, ErrExists)
		}

		res := tx.Model(&models.Photo{}).Where("path = ?", oldPath).Update("path", newPath)
		if res.Error != nil {
			return fmt.Errorf("failed to move photo: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("move %s: %w", oldPath, ErrNotFound)
		}
		return nil
	})
}

// StoreSource streams the catalogue with a keyset cursor. It reports its
// pages as sorted.
type StoreSource struct {
	store *Store

	mu     sync.Mutex
	cursor *models.Photo
	done   bool
	gen    uint64
}

// NewStoreSource creates a cursor over store.
func NewStoreSource(store *Store) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Name() string { return SourceStore }
func (s *StoreSource) Sorted() bool { return true }

func (s *StoreSource) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

func (s *StoreSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = nil
	s.done = false
	s.gen++
}

func (s *StoreSource) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *StoreSource) FetchNext(ctx context.Context, limit int) ([]record.Record, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, nil
	}
	cursor, gen := s.cursor, s.gen
	s.mu.Unlock()

	photos, err := s.store.Page(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// A Reset during the query invalidates the page.
	if gen != s.gen {
		s.mu.Unlock()
		return nil, ctx.Err()
	}
	if len(photos) < limit {
		s.done = true
	}
	if len(photos) > 0 {
		last := photos[len(photos)-1]
		s.cursor = &last
	}
	s.mu.Unlock()

	recs := make([]record.Record, 0, len(photos))
	for _, p := range photos {
		rec := p.Record()
		rec.SourceTag = SourceStore
		recs = append(recs, rec)
	}
	return recs, nil
}
