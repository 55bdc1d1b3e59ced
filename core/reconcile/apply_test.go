package reconcile

import (
	"testing"

	"photo-library/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	removed  []string
	inserted []string
	changed  []string
}

func (h *recordingHooks) Removed(rec record.Record)  { h.removed = append(h.removed, rec.Identity) }
func (h *recordingHooks) Inserted(rec record.Record) { h.inserted = append(h.inserted, rec.Identity) }
func (h *recordingHooks) Changed(old, new record.Record, fields []string) {
	h.changed = append(h.changed, new.Identity)
}

func TestApply_NotifiesHooks(t *testing.T) {
	current := []record.Record{rec("x", 1), rec("y", 1), rec("z", 1)}
	fresh := []record.Record{rec("y", 2), rec("z", 1), rec("w", 1)}

	seq := record.NewSequence(current...)
	hooks := &recordingHooks{}
	require.NoError(t, Apply(seq, Diff(current, fresh, Options{}), hooks))

	assert.Equal(t, []string{"x"}, hooks.removed)
	assert.Equal(t, []string{"w"}, hooks.inserted)
	assert.Equal(t, []string{"y"}, hooks.changed)
}

func TestApply_MovesAreNotRemovals(t *testing.T) {
	current := []record.Record{rec("a", 1), rec("b", 1)}
	fresh := []record.Record{rec("b", 1), rec("a", 2)}

	seq := record.NewSequence(current...)
	hooks := &recordingHooks{}
	patch := Diff(current, fresh, Options{})
	require.Len(t, patch.Moved, 1)
	require.NoError(t, Apply(seq, patch, hooks))

	assert.Empty(t, hooks.removed)
	assert.Empty(t, hooks.inserted)
	assert.Equal(t, []string{"b", "a"}, record.Identities(seq.Records()))
}

func TestApply_ResetNotifiesDifferences(t *testing.T) {
	current := []record.Record{rec("a", 1), rec("b", 1)}
	fresh := []record.Record{rec("b", 2), rec("c", 1)}

	seq := record.NewSequence(current...)
	hooks := &recordingHooks{}
	patch := Diff(current, fresh, Options{ResetRatio: 0.1})
	require.True(t, patch.IsReset)
	require.NoError(t, Apply(seq, patch, hooks))

	assert.Equal(t, []string{"a"}, hooks.removed)
	assert.Equal(t, []string{"c"}, hooks.inserted)
	assert.Equal(t, []string{"b"}, hooks.changed)
}

func TestApply_StalePatchFails(t *testing.T) {
	current := []record.Record{rec("a", 1), rec("b", 1)}
	patch := Diff(current, []record.Record{rec("b", 1)}, Options{})

	// The view changed after the diff was computed.
	seq := record.NewSequence(rec("b", 1), rec("a", 1))
	err := Apply(seq, patch, nil)
	assert.Error(t, err)
}
