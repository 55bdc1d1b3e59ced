package storage

import "time"

// Config holds the object storage connection. One bucket carries the photo
// originals read by the bucket source and, under the cache prefix, the
// generated thumbnails.
type Config struct {
	// Endpoint is host:port of the S3 compatible service; a scheme is stripped.
	Endpoint  string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	UseSSL    bool   `mapstructure:"use_ssl" default:"false"`
	// Bucket holds photos and thumbnails. It is created on startup when missing.
	Bucket string `mapstructure:"bucket" default:"photos"`
	Region string `mapstructure:"region" default:""`
	// Timeout bounds dialing, the TLS handshake and the wait for response headers.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// timeout returns Timeout, or 30s when unset.
func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}
