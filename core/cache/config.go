package cache

// Config holds configuration for the cache coordinator and its backend.
type Config struct {
	// Backend selects the artifact cache: memory, storage or redis.
	Backend string `mapstructure:"backend" default:"memory"`
	// Prefix is prepended to every artifact key.
	Prefix string `mapstructure:"prefix" default:"thumbnails/"`
	// RedisAddr is the address of the redis server for the redis backend.
	RedisAddr string `mapstructure:"redis_addr" default:"localhost:6379"`
	// RedisDB selects the redis database.
	RedisDB int `mapstructure:"redis_db" default:"0"`
	// StashCapacity bounds the recently removed stash.
	StashCapacity int `mapstructure:"stash_capacity" default:"256"`
	// SensitiveFields lists the changed fields that invalidate an artifact.
	SensitiveFields []string `mapstructure:"sensitive_fields" default:"mtime,size"`
	// QueueSize is the backlog of queued artifact operations above which
	// overflow is reported. The queue itself never blocks.
	QueueSize int `mapstructure:"queue_size" default:"256"`
}

// DefaultSensitiveFields are used when Config.SensitiveFields is empty.
var DefaultSensitiveFields = []string{"mtime", "size"}

func (c Config) withDefaults() Config {
	if c.StashCapacity <= 0 {
		c.StashCapacity = 256
	}
	if len(c.SensitiveFields) == 0 {
		c.SensitiveFields = DefaultSensitiveFields
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}
