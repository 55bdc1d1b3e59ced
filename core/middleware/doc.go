// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting the library routes. Paths such as
//     /metrics can be exempted.
//   - rayid: assigns a unique request id (RayID) to every request, injecting
//     it into the context locals and the X-Ray-ID response header so that
//     logger.WithRayID can correlate log entries.
//
// Both are registered globally in cmd/start.go, rayid first.
package middleware
