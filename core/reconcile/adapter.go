package reconcile

import (
	"reflect"

	"photo-library/core/record"
)

// Comparator defines the model-specific comparison used to detect in-place
// changes. Implementations return the names of the fields that differ between
// two versions of the same identity, or an empty slice when they are equal.
type Comparator interface {
	CompareFields(old, new record.Record) []string
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(old, new record.Record) []string

// CompareFields calls f.
func (f ComparatorFunc) CompareFields(old, new record.Record) []string {
	return f(old, new)
}

// DefaultComparator compares the timestamp and the whole payload.
var DefaultComparator Comparator = ComparatorFunc(func(old, new record.Record) []string {
	var fields []string
	if !old.Timestamp.Equal(new.Timestamp) {
		fields = append(fields, "timestamp")
	}
	if !reflect.DeepEqual(old.Payload, new.Payload) {
		fields = append(fields, "payload")
	}
	return fields
})

// Hooks are invoked by Apply alongside each structural operation so auxiliary
// caches stay consistent with the view.
type Hooks interface {
	// Removed is called for a record that left the view.
	Removed(rec record.Record)

	// Inserted is called for a record that entered the view.
	Inserted(rec record.Record)

	// Changed is called when a record was replaced by a newer version.
	Changed(old, new record.Record, fields []string)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) Removed(record.Record) {}
func (NopHooks) Inserted(record.Record) {}
func (NopHooks) Changed(record.Record, record.Record, []string) {}
