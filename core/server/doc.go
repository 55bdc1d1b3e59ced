// Package server holds the HTTP server configuration.
//
// While the start command handles the server startup, this package defines
// the configuration structure: the HTTP port, the API key guarding the
// library routes, and the graceful shutdown timeout.
//
// # Usage
//
// This package is embedded by core/config and read by cmd/start.go.
package server
