package record

import (
	"path"
	"strings"
	"time"
)

// Record is a single entry flowing through the engine.
type Record struct {
	// Identity is the stable unique key, a normalized relative path.
	Identity string `json:"identity"`

	// Timestamp is the primary sort key (descending).
	Timestamp time.Time `json:"timestamp"`

	// SourceTag names the producer that emitted the record.
	SourceTag string `json:"source"`

	// Payload is opaque to the engine.
	Payload any `json:"payload,omitempty"`
}

// SortKey is the tuple that determines presentation order.
type SortKey struct {
	Timestamp time.Time
	Identity  string
}

// Key returns the sort key of the record.
func (r Record) Key() SortKey {
	return SortKey{Timestamp: r.Timestamp, Identity: r.Identity}
}

// Valid reports whether the record can enter a sequence.
func (r Record) Valid() bool {
	return r.Identity != ""
}

// Before reports whether k is presented ahead of o.
func (k SortKey) Before(o SortKey) bool {
	if !k.Timestamp.Equal(o.Timestamp) {
		return k.Timestamp.After(o.Timestamp)
	}
	return k.Identity < o.Identity
}

// Less orders records newest first, identity ascending on ties.
func Less(a, b Record) bool {
	return a.Key().Before(b.Key())
}

// NormalizeIdentity turns a path into the canonical identity form:
// forward slashes, cleaned, no leading "./" or "/".
func NormalizeIdentity(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Identities returns the identities of recs in order.
func Identities(recs []Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.Identity
	}
	return ids
}
