// Package metrics exposes Prometheus collectors for the streaming engine.
//
// All methods are nil-safe so components can run without metrics in tests:
//
//	var m *metrics.Engine // nil
//	m.ObserveBatch(10)    // no-op
//
// Collectors are registered on the Registerer passed to New, which keeps test
// registries isolated from the process-wide default.
package metrics
