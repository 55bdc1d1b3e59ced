package stream

import "time"

// Config holds the tuning knobs of the streaming engine.
type Config struct {
	// FlushThreshold forces an immediate flush once this many records are staged.
	FlushThreshold int `mapstructure:"flush_threshold" default:"500"`
	// FlushInterval is the debounce delay after the first unflushed record.
	FlushInterval time.Duration `mapstructure:"flush_interval" default:"50ms"`
	// DrainInterval replaces FlushInterval while a finish event is pending.
	DrainInterval time.Duration `mapstructure:"drain_interval" default:"1ms"`
	// BatchSize caps the number of records delivered per flush.
	BatchSize int `mapstructure:"batch_size" default:"200"`
	// PageSize is the limit passed to Source.FetchNext.
	PageSize int `mapstructure:"page_size" default:"250"`
	// InboxSize is the capacity of the channel between workers and the loop.
	InboxSize int `mapstructure:"inbox_size" default:"64"`
	// ResetRatio turns large refresh patches into resets. Zero disables it.
	ResetRatio float64 `mapstructure:"reset_ratio" default:"0"`
	// StrictOrder holds back every record while an unsorted source is still
	// producing. Off, an unsorted source only blocks while its queue is empty.
	StrictOrder bool `mapstructure:"strict_order" default:"false"`
}

// withDefaults fills zero values so a partially populated Config is usable.
func (c Config) withDefaults() Config {
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 500
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 50 * time.Millisecond
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.PageSize <= 0 {
		c.PageSize = 250
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 64
	}
	return c
}
