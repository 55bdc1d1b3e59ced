package stream

import (
	"photo-library/core/record"

	"github.com/tidwall/btree"
	"go.uber.org/zap"
)

// queued is a record waiting in an unsorted source queue.
type queued struct {
	rec record.Record
	seq uint64
}

func queuedLess(a, b queued) bool {
	if record.Less(a.rec, b.rec) {
		return true
	}
	if record.Less(b.rec, a.rec) {
		return false
	}
	return a.seq < b.seq
}

// sourceQueue buffers the admitted records of one source.
type sourceQueue struct {
	name      string
	sorted    bool
	fifo      []record.Record
	head      int
	heap      *btree.BTreeG[queued]
	exhausted bool
}

func newSourceQueue(name string, sorted bool) *sourceQueue {
	q := &sourceQueue{name: name, sorted: sorted}
	if !sorted {
		q.heap = btree.NewBTreeG[queued](queuedLess)
	}
	return q
}

func (q *sourceQueue) len() int {
	if q.sorted {
		return len(q.fifo) - q.head
	}
	return q.heap.Len()
}

func (q *sourceQueue) peek() (record.Record, bool) {
	if q.sorted {
		if q.head >= len(q.fifo) {
			return record.Record{}, false
		}
		return q.fifo[q.head], true
	}
	item, ok := q.heap.Min()
	return item.rec, ok
}

func (q *sourceQueue) pop() record.Record {
	if q.sorted {
		rec := q.fifo[q.head]
		q.fifo[q.head] = record.Record{}
		q.head++
		// Compact once the consumed prefix dominates the backing array.
		if q.head > 64 && q.head*2 > len(q.fifo) {
			q.fifo = append([]record.Record(nil), q.fifo[q.head:]...)
			q.head = 0
		}
		return rec
	}
	item, _ := q.heap.PopMin()
	return item.rec
}

// MergeEngine merges the output of several sources into one stream ordered by
// record.Less and deduplicated by identity. It is not safe for concurrent use.
type MergeEngine struct {
	queues  map[string]*sourceQueue
	order   []string
	seen    map[string]struct{}
	seq     uint64
	skipped int
	strict  bool
	logger  *zap.Logger
}

// NewMergeEngine creates an empty merge session.
func NewMergeEngine(logger *zap.Logger) *MergeEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeEngine{
		queues: make(map[string]*sourceQueue),
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// SetStrict makes PopReady hold back every record while an unsorted source
// is not exhausted. It survives Reset.
func (m *MergeEngine) SetStrict(strict bool) {
	m.strict = strict
}

// AddSource registers a source. Sources pushed without registration are
// treated as unsorted.
func (m *MergeEngine) AddSource(name string, sorted bool) {
	if _, exists := m.queues[name]; exists {
		return
	}
	m.queues[name] = newSourceQueue(name, sorted)
	m.order = append(m.order, name)
}

// PushChunk admits the records of one page. Records whose identity was
// already seen from any source, and records without identity, are dropped.
// It returns the number of records admitted.
func (m *MergeEngine) PushChunk(source string, recs []record.Record) int {
	q, ok := m.queues[source]
	if !ok {
		m.AddSource(source, false)
		q = m.queues[source]
	}

	admitted := 0
	for _, rec := range recs {
		if !rec.Valid() {
			m.skipped++
			m.logger.Warn("Skipping record without identity", zap.String("source", source))
			continue
		}
		if _, dup := m.seen[rec.Identity]; dup {
			continue
		}
		m.seen[rec.Identity] = struct{}{}
		if rec.SourceTag == "" {
			rec.SourceTag = source
		}

		if q.sorted {
			q.fifo = append(q.fifo, rec)
		} else {
			m.seq++
			q.heap.Set(queued{rec: rec, seq: m.seq})
		}
		admitted++
	}
	return admitted
}

// PopNext emits up to n records, always taking the most ahead head among the
// non-empty queues.
func (m *MergeEngine) PopNext(n int) []record.Record {
	return m.pop(n, false)
}

// PopReady is PopNext that stops as soon as a source which is not exhausted
// has an empty queue. An unsorted source is trusted to deliver pages in
// roughly descending order, so its ordering is best effort unless SetStrict
// is on, in which case it blocks until exhausted.
func (m *MergeEngine) PopReady(n int) []record.Record {
	return m.pop(n, true)
}

func (m *MergeEngine) pop(n int, safe bool) []record.Record {
	var out []record.Record
	for len(out) < n {
		var (
			best     *sourceQueue
			bestHead record.Record
		)
		for _, name := range m.order {
			q := m.queues[name]
			if safe && !q.exhausted && (q.len() == 0 || (m.strict && !q.sorted)) {
				return out
			}
			head, ok := q.peek()
			if !ok {
				continue
			}
			if best == nil || record.Less(head, bestHead) {
				best = q
				bestHead = head
			}
		}
		if best == nil {
			return out
		}
		out = append(out, best.pop())
	}
	return out
}

// MarkExhausted records that source will not push any more records.
func (m *MergeEngine) MarkExhausted(source string) {
	q, ok := m.queues[source]
	if !ok {
		m.AddSource(source, false)
		q = m.queues[source]
	}
	q.exhausted = true
}

// IsAllExhausted reports whether every registered source is exhausted.
func (m *MergeEngine) IsAllExhausted() bool {
	for _, q := range m.queues {
		if !q.exhausted {
			return false
		}
	}
	return true
}

// Pending returns the number of admitted records not yet popped.
func (m *MergeEngine) Pending() int {
	n := 0
	for _, q := range m.queues {
		n += q.len()
	}
	return n
}

// Skipped returns the number of malformed records dropped since Reset.
func (m *MergeEngine) Skipped() int {
	return m.skipped
}

// Reset clears all queues, registrations and dedup state.
func (m *MergeEngine) Reset() {
	m.queues = make(map[string]*sourceQueue)
	m.order = nil
	m.seen = make(map[string]struct{})
	m.seq = 0
	m.skipped = 0
}
