package loader

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature is a self-contained module mounted on the HTTP router.
type Feature interface {
	// Name identifies the feature in logs.
	Name() string
	// IsEnabled reports whether the feature should be loaded.
	IsEnabled() bool
	// Load registers the feature's routes and starts its background work.
	Load(app fiber.Router) error
}

// Closer is implemented by features that own background work.
type Closer interface {
	Close() error
}

// Manager holds the registered features.
type Manager struct {
	features []Feature
	loaded   []Feature
	logger   *zap.Logger
}

// NewManager creates an empty feature manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Register adds a feature to the registry.
func (m *Manager) Register(f Feature) {
	m.features = append(m.features, f)
}

// LoadAll loads every enabled feature in registration order.
func (m *Manager) LoadAll(app fiber.Router) error {
	for _, f := range m.features {
		if !f.IsEnabled() {
			m.logger.Info("Feature disabled", zap.String("feature", f.Name()))
			continue
		}
		if err := f.Load(app); err != nil {
			return fmt.Errorf("failed to load feature %s: %w", f.Name(), err)
		}
		m.loaded = append(m.loaded, f)
		m.logger.Info("Feature loaded", zap.String("feature", f.Name()))
	}
	return nil
}

// CloseAll closes the loaded features in reverse order. It returns the first
// error encountered but closes every feature.
func (m *Manager) CloseAll() error {
	var first error
	for i := len(m.loaded) - 1; i >= 0; i-- {
		c, ok := m.loaded[i].(Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			m.logger.Error("Failed to close feature", zap.String("feature", m.loaded[i].Name()), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	m.loaded = nil
	return first
}
