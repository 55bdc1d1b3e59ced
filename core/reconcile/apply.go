package reconcile

import (
	"fmt"

	"photo-library/core/record"
)

// Apply executes patch against seq and notifies hooks for every operation.
// Removals run first in descending index order, then insertions in ascending
// order, then in-place changes. Moved identities produce a Changed
// notification when their payload differs and nothing otherwise.
func Apply(seq *record.Sequence, patch Patch, hooks Hooks) error {
	if hooks == nil {
		hooks = NopHooks{}
	}

	if patch.IsReset {
		previous := seq.Records()
		seq.Reset(patch.Snapshot)
		notifyReset(previous, seq, patch, hooks)
		return nil
	}

	// Records leaving their slot, kept so moves can report the old version.
	detached := make(map[string]record.Record, len(patch.Moved))

	for _, rm := range patch.Removed {
		rec, err := seq.RemoveAt(rm.Index)
		if err != nil {
			return fmt.Errorf("apply removal of %q: %w", rm.Identity, err)
		}
		if rec.Identity != rm.Identity {
			return fmt.Errorf("apply removal: index %d holds %q, expected %q", rm.Index, rec.Identity, rm.Identity)
		}
		if _, isMove := patch.Moved[rec.Identity]; isMove {
			detached[rec.Identity] = rec
			continue
		}
		hooks.Removed(rec)
	}

	for _, ins := range patch.Inserted {
		if err := seq.Insert(ins.Index, ins.Record); err != nil {
			return fmt.Errorf("apply insertion: %w", err)
		}
		if fields, isMove := patch.Moved[ins.Record.Identity]; isMove {
			if len(fields) > 0 {
				hooks.Changed(detached[ins.Record.Identity], ins.Record, fields)
			}
			continue
		}
		hooks.Inserted(ins.Record)
	}

	for _, ch := range patch.Changed {
		old, ok := seq.Replace(ch.Record)
		if !ok {
			return fmt.Errorf("apply change: %q not in sequence", ch.Record.Identity)
		}
		hooks.Changed(old, ch.Record, ch.Fields)
	}

	return nil
}

// notifyReset derives hook calls for a wholesale replacement.
func notifyReset(previous []record.Record, seq *record.Sequence, patch Patch, hooks Hooks) {
	before := make(map[string]record.Record, len(previous))
	for _, rec := range previous {
		before[rec.Identity] = rec
		if !seq.Contains(rec.Identity) {
			hooks.Removed(rec)
		}
	}

	changed := make(map[string][]string, len(patch.Changed))
	for _, ch := range patch.Changed {
		changed[ch.Record.Identity] = ch.Fields
	}
	for id, fields := range patch.Moved {
		changed[id] = fields
	}

	for _, rec := range seq.Records() {
		old, existed := before[rec.Identity]
		if !existed {
			hooks.Inserted(rec)
			continue
		}
		if fields := changed[rec.Identity]; len(fields) > 0 {
			hooks.Changed(old, rec, fields)
		}
	}
}
