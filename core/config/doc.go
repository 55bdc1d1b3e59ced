// Package config provides configuration management for the photo library.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP port, API key, shutdown timeout
//   - Database: MySQL or SQLite connection details
//   - Storage: S3/MinIO credentials and bucket settings
//   - Log: logging level, format and optional rotated file
//   - Library: library root, sources, watcher
//   - Stream: flush thresholds, debounce and batch sizes of the streaming engine
//   - Cache: artifact cache backend and removal stash
//
// Every field carries its default in a `default` struct tag and can be
// overridden by an environment variable named after its key path
// (stream.batch_size -> STREAM_BATCH_SIZE).
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
