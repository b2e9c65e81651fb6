// Package selection tracks which file IDs are marked for removal.
package selection

import (
	"sort"

	"github.com/entro314-labs/drivepurge/internal/dupes"
	"github.com/entro314-labs/drivepurge/internal/files"
)

// Policy picks IDs to remove across a set of duplicate groups.
type Policy int

const (
	PolicyClear Policy = iota
	PolicyKeepOldest
	PolicyKeepNewest
)

func (p Policy) String() string {
	switch p {
	case PolicyKeepOldest:
		return "keep oldest"
	case PolicyKeepNewest:
		return "keep newest"
	default:
		return "clear"
	}
}

// Set is an insertion-ordered set of IDs. While frozen it ignores edits.
// The zero value is an empty, unfrozen set.
type Set struct {
	ids    []string
	index  map[string]int
	frozen bool
}

// Has reports whether id is selected.
func (s *Set) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len is the number of selected IDs.
func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the selection in the order IDs were added.
func (s *Set) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Lookup returns the selection as a membership map.
func (s *Set) Lookup() map[string]struct{} {
	out := make(map[string]struct{}, len(s.ids))
	for _, id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

// Frozen reports whether edits are currently refused.
func (s *Set) Frozen() bool {
	return s.frozen
}

// Freeze refuses edits until Thaw is called.
func (s *Set) Freeze() { s.frozen = true }

// Thaw accepts edits again.
func (s *Set) Thaw() { s.frozen = false }

// Toggle adds id when absent and removes it when present. It returns false
// if the set is frozen.
func (s *Set) Toggle(id string) bool {
	if s.frozen {
		return false
	}
	if s.Has(id) {
		s.remove(id)
	} else {
		s.add(id)
	}
	return true
}

// Apply replaces the whole selection with what p dictates for groups.
// Manual edits made before are discarded.
func (s *Set) Apply(p Policy, groups []dupes.Group) bool {
	if s.frozen {
		return false
	}
	s.ids = nil
	s.index = nil
	for _, id := range Pick(p, groups) {
		s.add(id)
	}
	return true
}

// Size sums the sizes of selected records, read from the live list.
func (s *Set) Size(records []files.Record) int64 {
	return files.TotalSize(records, s.Lookup())
}

// Prune drops IDs that are no longer a member of any group. A record left
// alone in its hash is the last copy and can never stay selected.
func (s *Set) Prune(groups []dupes.Group) {
	if s.frozen || len(s.ids) == 0 {
		return
	}
	live := make(map[string]struct{}, dupes.Count(groups))
	for _, g := range groups {
		for _, r := range g.Members {
			live[r.ID] = struct{}{}
		}
	}
	for _, id := range s.IDs() {
		if _, ok := live[id]; !ok {
			s.remove(id)
		}
	}
}

func (s *Set) add(id string) {
	if s.index == nil {
		s.index = map[string]int{}
	}
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = len(s.ids)
	s.ids = append(s.ids, id)
}

func (s *Set) remove(id string) {
	idx, ok := s.index[id]
	if !ok {
		return
	}
	s.ids = append(s.ids[:idx], s.ids[idx+1:]...)
	delete(s.index, id)
	for i := idx; i < len(s.ids); i++ {
		s.index[s.ids[i]] = i
	}
}

// Pick returns the IDs p selects. Within a group members are stably sorted
// by creation time, so among equal timestamps input order decides.
func Pick(p Policy, groups []dupes.Group) []string {
	if p == PolicyClear {
		return nil
	}
	picked := []string{}
	for _, g := range groups {
		if len(g.Members) < 2 {
			continue
		}
		sorted := append([]files.Record(nil), g.Members...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].CreatedTime.Before(sorted[j].CreatedTime)
		})
		switch p {
		case PolicyKeepOldest:
			sorted = sorted[1:]
		case PolicyKeepNewest:
			sorted = sorted[:len(sorted)-1]
		}
		for _, r := range sorted {
			picked = append(picked, r.ID)
		}
	}
	return picked
}
