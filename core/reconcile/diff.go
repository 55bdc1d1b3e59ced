package reconcile

import (
	"sort"

	"photo-library/core/record"
)

// Diff computes the patch that transforms current into fresh.
// current must not contain duplicate identities. Duplicates in fresh are
// resolved by keeping the last occurrence; records without identity are ignored.
func Diff(current, fresh []record.Record, opts Options) Patch {
	cmp := opts.Comparator
	if cmp == nil {
		cmp = DefaultComparator
	}

	target := dedupLastWins(fresh)

	// Trivial cases
	if len(current) == 0 && len(target) == 0 {
		return Patch{}
	}
	if len(current) == 0 {
		return Patch{IsReset: true, Snapshot: target}
	}

	targetIndex := make(map[string]int, len(target))
	for i, rec := range target {
		targetIndex[rec.Identity] = i
	}

	var (
		patch      Patch
		commonCur  []int // positions in current of identities also in target
		commonPos  []int // matching positions in target
		currentSet = make(map[string]struct{}, len(current))
	)

	for i, rec := range current {
		currentSet[rec.Identity] = struct{}{}
		pos, ok := targetIndex[rec.Identity]
		if !ok {
			patch.Removed = append(patch.Removed, Removal{Index: i, Identity: rec.Identity})
			continue
		}
		commonCur = append(commonCur, i)
		commonPos = append(commonPos, pos)
	}

	// Identities in both lists keep their slot only if they belong to the
	// longest run already in target order; the rest are moved.
	kept := longestIncreasing(commonPos)
	moved := make(map[string]struct{})
	for k, i := range commonCur {
		old := current[i]
		next := target[commonPos[k]]
		fields := cmp.CompareFields(old, next)
		if kept[k] {
			if len(fields) > 0 {
				patch.Changed = append(patch.Changed, Change{Record: next, Fields: fields})
			}
			continue
		}
		if patch.Moved == nil {
			patch.Moved = make(map[string][]string)
		}
		patch.Moved[old.Identity] = fields
		moved[old.Identity] = struct{}{}
		patch.Removed = append(patch.Removed, Removal{Index: i, Identity: old.Identity})
	}

	sort.Slice(patch.Removed, func(a, b int) bool {
		return patch.Removed[a].Index > patch.Removed[b].Index
	})

	length := len(current) - len(patch.Removed)
	for pos, rec := range target {
		_, existed := currentSet[rec.Identity]
		_, wasMoved := moved[rec.Identity]
		if existed && !wasMoved {
			continue
		}
		idx := pos
		if idx > length {
			idx = length
		}
		patch.Inserted = append(patch.Inserted, Insertion{Index: idx, Record: rec})
		length++
	}

	if opts.ResetRatio > 0 {
		ops := float64(len(patch.Removed) + len(patch.Inserted))
		if ops > opts.ResetRatio*float64(len(target)) {
			patch.IsReset = true
			patch.Snapshot = target
		}
	}

	return patch
}

// dedupLastWins drops invalid records and every occurrence of an identity but
// the last one, preserving the order of survivors.
func dedupLastWins(recs []record.Record) []record.Record {
	last := make(map[string]int, len(recs))
	for i, rec := range recs {
		if rec.Valid() {
			last[rec.Identity] = i
		}
	}
	if len(last) == len(recs) {
		return recs
	}
	out := make([]record.Record, 0, len(last))
	for i, rec := range recs {
		if rec.Valid() && last[rec.Identity] == i {
			out = append(out, rec)
		}
	}
	return out
}

// longestIncreasing marks the elements of seq that form one longest strictly
// increasing subsequence.
func longestIncreasing(seq []int) []bool {
	keep := make([]bool, len(seq))
	if len(seq) == 0 {
		return keep
	}

	// tails[l] is the index in seq of the smallest tail of an increasing
	// subsequence of length l+1.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		l := sort.Search(len(tails), func(j int) bool {
			return seq[tails[j]] >= v
		})
		if l > 0 {
			prev[i] = tails[l-1]
		} else {
			prev[i] = -1
		}
		if l == len(tails) {
			tails = append(tails, i)
		} else {
			tails[l] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		keep[i] = true
	}
	return keep
}
