package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entro314-labs/drivepurge/internal/dupes"
	"github.com/entro314-labs/drivepurge/internal/files"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func scenario() ([]files.Record, []dupes.Group) {
	records := []files.Record{
		{ID: "1", Hash: "a", Size: 100, CreatedTime: t0},
		{ID: "2", Hash: "a", Size: 100, CreatedTime: t0.Add(time.Hour)},
		{ID: "3", Hash: "b", Size: 50, CreatedTime: t0.Add(2 * time.Hour)},
	}
	return records, dupes.Find(records)
}

func TestPolicyScenario(t *testing.T) {
	records, groups := scenario()

	var s Set
	require.True(t, s.Apply(PolicyKeepOldest, groups))
	assert.Equal(t, []string{"2"}, s.IDs())
	assert.Equal(t, int64(100), s.Size(records))

	require.True(t, s.Apply(PolicyKeepNewest, groups))
	assert.Equal(t, []string{"1"}, s.IDs())

	require.True(t, s.Apply(PolicyClear, groups))
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Size(records))
}

func TestPoliciesComplementaryOnPairs(t *testing.T) {
	group := dupes.Group{Hash: "h", Members: []files.Record{
		{ID: "late", CreatedTime: t0.Add(5 * time.Minute)},
		{ID: "early", CreatedTime: t0},
	}}
	groups := []dupes.Group{group}

	oldest := Pick(PolicyKeepOldest, groups)
	newest := Pick(PolicyKeepNewest, groups)
	require.Len(t, oldest, 1)
	require.Len(t, newest, 1)
	assert.NotEqual(t, oldest[0], newest[0])
	assert.ElementsMatch(t, []string{"late", "early"}, append(oldest, newest...))
	assert.Equal(t, "late", oldest[0])
}

func TestPickTieBreakIsInputOrder(t *testing.T) {
	groups := []dupes.Group{{Hash: "h", Members: []files.Record{
		{ID: "x", CreatedTime: t0},
		{ID: "y", CreatedTime: t0},
		{ID: "z", CreatedTime: t0},
	}}}

	assert.Equal(t, []string{"y", "z"}, Pick(PolicyKeepOldest, groups))
	assert.Equal(t, []string{"x", "y"}, Pick(PolicyKeepNewest, groups))
}

func TestToggleIsIdempotentPair(t *testing.T) {
	var s Set
	s.Toggle("a")
	s.Toggle("b")
	before := s.IDs()

	s.Toggle("c")
	s.Toggle("c")
	assert.Equal(t, before, s.IDs())

	s.Toggle("a")
	s.Toggle("a")
	assert.ElementsMatch(t, before, s.IDs())
	assert.True(t, s.Has("a"))
}

func TestApplyReplacesManualEdits(t *testing.T) {
	_, groups := scenario()

	var s Set
	s.Toggle("3")
	s.Toggle("1")
	s.Apply(PolicyKeepOldest, groups)
	assert.Equal(t, []string{"2"}, s.IDs())
	assert.False(t, s.Has("3"))
}

func TestSelectionAcrossGroups(t *testing.T) {
	groups := dupes.Find([]files.Record{
		{ID: "a1", Hash: "a", CreatedTime: t0},
		{ID: "b1", Hash: "b", CreatedTime: t0},
		{ID: "a2", Hash: "a", CreatedTime: t0.Add(time.Second)},
		{ID: "b2", Hash: "b", CreatedTime: t0.Add(time.Second)},
	})

	var s Set
	s.Apply(PolicyKeepOldest, groups)
	assert.Equal(t, []string{"a2", "b2"}, s.IDs())
}

func TestFrozenRefusesEdits(t *testing.T) {
	_, groups := scenario()

	var s Set
	s.Toggle("1")
	s.Freeze()
	assert.False(t, s.Toggle("2"))
	assert.False(t, s.Apply(PolicyClear, groups))
	assert.Equal(t, []string{"1"}, s.IDs())

	s.Thaw()
	assert.True(t, s.Toggle("2"))
	assert.Equal(t, 2, s.Len())
}

func TestPrune(t *testing.T) {
	var s Set
	s.Toggle("1")
	s.Toggle("gone")
	s.Toggle("2")
	s.Prune([]dupes.Group{{Hash: "h", Members: []files.Record{{ID: "1"}, {ID: "2"}, {ID: "3"}}}})
	assert.Equal(t, []string{"1", "2"}, s.IDs())
}

func TestPruneDropsLastCopy(t *testing.T) {
	var s Set
	s.Toggle("1")
	s.Toggle("3")
	// "3" is the only record left with hash "b".
	s.Prune(dupes.Find([]files.Record{
		{ID: "1", Hash: "a"},
		{ID: "2", Hash: "a"},
		{ID: "3", Hash: "b"},
	}))
	assert.Equal(t, []string{"1"}, s.IDs())
}

func TestPruneIgnoredWhileFrozen(t *testing.T) {
	var s Set
	s.Toggle("1")
	s.Freeze()
	s.Prune(nil)
	assert.Equal(t, []string{"1"}, s.IDs())
}
