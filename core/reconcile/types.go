package reconcile

import "photo-library/core/record"

// Removal is a record to drop from the current view.
type Removal struct {
	// Index is the position in the current view before any removal.
	Index int `json:"index"`

	// Identity is the identity stored at Index.
	Identity string `json:"identity"`
}

// Insertion is a record to add to the view.
type Insertion struct {
	// Index is the target position, valid when insertions are applied in order.
	Index int `json:"index"`

	// Record is the snapshot record to insert.
	Record record.Record `json:"record"`
}

// Change is an in-place content update.
type Change struct {
	// Record is the new version of the record.
	Record record.Record `json:"record"`

	// Fields names the payload fields that differ, e.g. "mtime" or "favorite".
	Fields []string `json:"fields"`
}

// Patch is the set of structural operations that transforms the current view
// into a snapshot.
type Patch struct {
	// Removed is ordered by descending Index.
	Removed []Removal `json:"removed"`

	// Inserted is ordered by ascending Index.
	Inserted []Insertion `json:"inserted"`

	// Changed lists records replaced without moving.
	Changed []Change `json:"changed"`

	// Moved maps identities that appear in both Removed and Inserted because
	// their relative order changed, to the payload fields that differ.
	Moved map[string][]string `json:"moved,omitempty"`

	// IsReset means the consumer should replace its view with Snapshot.
	IsReset bool `json:"is_reset"`

	// Snapshot is the deduplicated target sequence. Only set for resets.
	Snapshot []record.Record `json:"snapshot,omitempty"`
}

// Empty reports whether applying the patch would change nothing.
func (p Patch) Empty() bool {
	return !p.IsReset && len(p.Removed) == 0 && len(p.Inserted) == 0 && len(p.Changed) == 0
}

// Summary holds aggregate counts of a patch, excluding moves from the
// removed and inserted totals.
type Summary struct {
	Removed  int  `json:"removed"`
	Inserted int  `json:"inserted"`
	Changed  int  `json:"changed"`
	Moved    int  `json:"moved"`
	Reset    bool `json:"reset"`
}

// Summary returns aggregate counts for logging and reports.
func (p Patch) Summary() Summary {
	moved := len(p.Moved)
	return Summary{
		Removed:  len(p.Removed) - moved,
		Inserted: len(p.Inserted) - moved,
		Changed:  len(p.Changed),
		Moved:    moved,
		Reset:    p.IsReset,
	}
}

// Options controls Diff.
type Options struct {
	// Comparator reports differing payload fields. Defaults to DefaultComparator.
	Comparator Comparator

	// ResetRatio, when positive, turns the patch into a reset once the number
	// of removals plus insertions exceeds ResetRatio times the snapshot size.
	ResetRatio float64
}
