package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"photo-library/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, payload any) record.Record {
	return record.Record{Identity: id, Timestamp: time.Unix(100, 0), Payload: payload}
}

func recs(ids ...string) []record.Record {
	out := make([]record.Record, len(ids))
	for i, id := range ids {
		out[i] = rec(id, nil)
	}
	return out
}

func applied(t *testing.T, current, fresh []record.Record, opts Options) []string {
	t.Helper()
	seq := record.NewSequence(current...)
	patch := Diff(current, fresh, opts)
	require.NoError(t, Apply(seq, patch, nil))
	return record.Identities(seq.Records())
}

// TestDiff_Scenario covers C=[x,y,z] F=[y,z,w].
func TestDiff_Scenario(t *testing.T) {
	current := recs("x", "y", "z")
	fresh := recs("y", "z", "w")

	patch := Diff(current, fresh, Options{})

	assert.False(t, patch.IsReset)
	assert.Equal(t, []Removal{{Index: 0, Identity: "x"}}, patch.Removed)
	require.Len(t, patch.Inserted, 1)
	assert.Equal(t, 2, patch.Inserted[0].Index)
	assert.Equal(t, "w", patch.Inserted[0].Record.Identity)
	assert.Empty(t, patch.Changed)
	assert.Empty(t, patch.Moved)

	assert.Equal(t, []string{"y", "z", "w"}, applied(t, current, fresh, Options{}))
}

func TestDiff_TrivialCases(t *testing.T) {
	t.Run("BothEmpty", func(t *testing.T) {
		patch := Diff(nil, nil, Options{})
		assert.True(t, patch.Empty())
	})

	t.Run("CurrentEmpty", func(t *testing.T) {
		patch := Diff(nil, recs("a", "b"), Options{})
		assert.True(t, patch.IsReset)
		assert.Equal(t, []string{"a", "b"}, record.Identities(patch.Snapshot))
	})

	t.Run("FreshEmptyPatchesEverythingAway", func(t *testing.T) {
		patch := Diff(recs("a", "b", "c"), nil, Options{})
		assert.False(t, patch.IsReset)
		assert.Equal(t, []Removal{{2, "c"}, {1, "b"}, {0, "a"}}, patch.Removed)
		assert.Empty(t, applied(t, recs("a", "b", "c"), nil, Options{}))
	})

	t.Run("Identical", func(t *testing.T) {
		patch := Diff(recs("a", "b"), recs("a", "b"), Options{})
		assert.True(t, patch.Empty())
	})
}

func TestDiff_RemovalsDescendingInsertionsAscending(t *testing.T) {
	current := recs("a", "b", "c", "d", "e")
	fresh := recs("n1", "b", "n2", "d", "n3")

	patch := Diff(current, fresh, Options{})

	for i := 1; i < len(patch.Removed); i++ {
		assert.Greater(t, patch.Removed[i-1].Index, patch.Removed[i].Index)
	}
	for i := 1; i < len(patch.Inserted); i++ {
		assert.Less(t, patch.Inserted[i-1].Index, patch.Inserted[i].Index)
	}
	assert.Equal(t, record.Identities(fresh), applied(t, current, fresh, Options{}))
}

func TestDiff_ChangedInPlace(t *testing.T) {
	current := []record.Record{rec("a", 1), rec("b", 1), rec("c", 1)}
	fresh := []record.Record{rec("a", 1), rec("b", 2), rec("c", 1)}

	patch := Diff(current, fresh, Options{})

	assert.Empty(t, patch.Removed)
	assert.Empty(t, patch.Inserted)
	require.Len(t, patch.Changed, 1)
	assert.Equal(t, "b", patch.Changed[0].Record.Identity)
	assert.Equal(t, []string{"payload"}, patch.Changed[0].Fields)
}

func TestDiff_CustomComparator(t *testing.T) {
	cmp := ComparatorFunc(func(old, new record.Record) []string {
		return nil
	})
	current := []record.Record{rec("a", 1)}
	fresh := []record.Record{rec("a", 2)}

	patch := Diff(current, fresh, Options{Comparator: cmp})
	assert.True(t, patch.Empty())
}

func TestDiff_Reorder(t *testing.T) {
	current := recs("a", "b", "c", "d")
	fresh := recs("d", "a", "b", "c")

	patch := Diff(current, fresh, Options{})

	// Only d needs to move; a, b, c stay in relative order.
	assert.Equal(t, []Removal{{Index: 3, Identity: "d"}}, patch.Removed)
	assert.Contains(t, patch.Moved, "d")
	summary := patch.Summary()
	assert.Equal(t, 0, summary.Removed)
	assert.Equal(t, 0, summary.Inserted)
	assert.Equal(t, 1, summary.Moved)

	assert.Equal(t, []string{"d", "a", "b", "c"}, applied(t, current, fresh, Options{}))
}

func TestDiff_DuplicatesInFreshLastWins(t *testing.T) {
	current := []record.Record{rec("a", 1)}
	fresh := []record.Record{rec("b", 1), rec("a", 1), rec("b", 2), {Identity: ""}}

	patch := Diff(current, fresh, Options{})

	require.Len(t, patch.Inserted, 1)
	assert.Equal(t, 2, patch.Inserted[0].Record.Payload)
	assert.Equal(t, []string{"a", "b"}, applied(t, current, fresh, Options{}))
}

func TestDiff_ResetRatio(t *testing.T) {
	current := recs("a", "b", "c", "d")
	fresh := recs("w", "x", "y", "z")

	patch := Diff(current, fresh, Options{})
	assert.False(t, patch.IsReset)

	patch = Diff(current, fresh, Options{ResetRatio: 0.5})
	assert.True(t, patch.IsReset)
	assert.Equal(t, []string{"w", "x", "y", "z"}, applied(t, current, fresh, Options{ResetRatio: 0.5}))

	patch = Diff(current, recs("a", "b", "c", "d", "e"), Options{ResetRatio: 0.5})
	assert.False(t, patch.IsReset)
}

// TestDiff_ApplyYieldsFresh checks the core property on random inputs.
func TestDiff_ApplyYieldsFresh(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	universe := make([]string, 30)
	for i := range universe {
		universe[i] = fmt.Sprintf("p%02d", i)
	}

	pick := func() []record.Record {
		perm := rng.Perm(len(universe))
		n := rng.Intn(len(universe))
		out := make([]record.Record, 0, n)
		for _, i := range perm[:n] {
			out = append(out, rec(universe[i], rng.Intn(3)))
		}
		return out
	}

	for i := 0; i < 500; i++ {
		current := pick()
		fresh := pick()
		if rng.Intn(4) == 0 && len(fresh) > 0 {
			fresh = append(fresh, fresh[rng.Intn(len(fresh))])
		}

		seq := record.NewSequence(current...)
		patch := Diff(current, fresh, Options{})
		require.NoError(t, Apply(seq, patch, nil))

		want := record.Identities(dedupLastWins(fresh))
		require.Equal(t, want, record.Identities(seq.Records()), "iteration %d", i)

		for _, r := range dedupLastWins(fresh) {
			got, ok := seq.Get(r.Identity)
			require.True(t, ok)
			require.Equal(t, r.Payload, got.Payload, "iteration %d identity %s", i, r.Identity)
		}
	}
}

func TestLongestIncreasing(t *testing.T) {
	tests := []struct {
		in   []int
		want int
	}{
		{nil, 0},
		{[]int{0}, 1},
		{[]int{0, 1, 2}, 3},
		{[]int{2, 1, 0}, 1},
		{[]int{3, 0, 1, 2}, 3},
		{[]int{1, 3, 0, 2, 4}, 3},
	}

	for _, tt := range tests {
		keep := longestIncreasing(tt.in)
		count := 0
		last := -1
		for i, k := range keep {
			if !k {
				continue
			}
			count++
			assert.Greater(t, tt.in[i], last)
			last = tt.in[i]
		}
		assert.Equal(t, tt.want, count, "input %v", tt.in)
	}
}
