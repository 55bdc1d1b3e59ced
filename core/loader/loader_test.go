package loader

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

type stubFeature struct {
	name    string
	enabled bool
	loadErr error
	loaded  bool
	closed  *[]string
}

func (s *stubFeature) Name() string    { return s.name }
func (s *stubFeature) IsEnabled() bool { return s.enabled }

func (s *stubFeature) Load(fiber.Router) error {
	s.loaded = true
	return s.loadErr
}

func (s *stubFeature) Close() error {
	*s.closed = append(*s.closed, s.name)
	return nil
}

func TestManager_LoadAll(t *testing.T) {
	var closed []string
	a := &stubFeature{name: "a", enabled: true, closed: &closed}
	b := &stubFeature{name: "b", enabled: false, closed: &closed}
	c := &stubFeature{name: "c", enabled: true, closed: &closed}

	m := NewManager(nil)
	m.Register(a)
	m.Register(b)
	m.Register(c)

	assert.NoError(t, m.LoadAll(fiber.New()))
	assert.True(t, a.loaded)
	assert.False(t, b.loaded)
	assert.True(t, c.loaded)

	assert.NoError(t, m.CloseAll())
	assert.Equal(t, []string{"c", "a"}, closed)
}

func TestManager_LoadAllError(t *testing.T) {
	var closed []string
	m := NewManager(nil)
	m.Register(&stubFeature{name: "broken", enabled: true, loadErr: errors.New("boom"), closed: &closed})

	err := m.LoadAll(fiber.New())
	assert.ErrorContains(t, err, "broken")
	assert.NoError(t, m.CloseAll())
	assert.Empty(t, closed)
}
