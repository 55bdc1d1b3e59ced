package library

import "time"

// Config holds configuration for the photo library feature.
type Config struct {
	// Enabled toggles the feature.
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Root is the directory scanned for photos.
	Root string `mapstructure:"root" default:"./photos"`
	// Sources lists the enabled record sources: store, scan, bucket.
	Sources []string `mapstructure:"sources" default:"store,scan"`
	// Extensions are the file extensions picked up by the scanner.
	Extensions []string `mapstructure:"extensions" default:".jpg,.jpeg,.png,.heic,.webp,.tif,.tiff,.dng"`
	// BucketPrefix is the object prefix listed by the bucket source.
	BucketPrefix string `mapstructure:"bucket_prefix" default:"photos/"`
	// PageSize is the default page size of GET /library.
	PageSize int `mapstructure:"page_size" default:"100"`
	// Watch enables refreshes triggered by file system changes.
	Watch bool `mapstructure:"watch" default:"true"`
	// WatchDebounce is the quiet period before a watcher refresh.
	WatchDebounce time.Duration `mapstructure:"watch_debounce" default:"500ms"`
	// SnapshotTTL lets refreshes issued in quick succession share a fetch.
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" default:"2s"`
	// LoadOnStart begins a load as soon as the feature is loaded.
	LoadOnStart bool `mapstructure:"load_on_start" default:"true"`
}

const (
	SourceStore  = "store"
	SourceScan   = "scan"
	SourceBucket = "bucket"
)

// HasSource reports whether name is among the enabled sources.
func (c Config) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}
