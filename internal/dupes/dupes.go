// Package dupes partitions file records into duplicate groups by hash.
package dupes

import "github.com/entro314-labs/drivepurge/internal/files"

// Group is two or more records sharing a hash, in input order.
type Group struct {
	Hash    string
	Members []files.Record
}

// Find groups records by hash in a single pass. Groups come out in the order
// their hash was first seen; hashes seen only once are dropped.
func Find(records []files.Record) []Group {
	index := map[string]int{}
	all := []Group{}
	for _, r := range records {
		idx, ok := index[r.Hash]
		if !ok {
			idx = len(all)
			index[r.Hash] = idx
			all = append(all, Group{Hash: r.Hash})
		}
		all[idx].Members = append(all[idx].Members, r)
	}

	groups := make([]Group, 0, len(all))
	for _, g := range all {
		if len(g.Members) >= 2 {
			groups = append(groups, g)
		}
	}
	return groups
}

// WastedSpace is the size of every copy beyond the first, assuming members of
// a group are byte-identical and one copy is always kept.
func WastedSpace(groups []Group) int64 {
	var total int64
	for _, g := range groups {
		if len(g.Members) < 2 {
			continue
		}
		total += g.Members[0].Size * int64(len(g.Members)-1)
	}
	return total
}

// Count is the number of records across all groups.
func Count(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Members)
	}
	return n
}
