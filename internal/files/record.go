// Package files holds the normalized file record every pipeline stage works on.
package files

import (
	"time"

	"github.com/entro314-labs/drivepurge/internal/provider"
)

// Origin tells where a record was ingested from.
type Origin int

const (
	OriginDrive Origin = iota
	OriginDemo
)

func (o Origin) String() string {
	if o == OriginDemo {
		return "demo"
	}
	return "drive"
}

// Record is an immutable metadata snapshot of one file.
//
// Hash is the provider checksum when one was supplied and the file ID
// otherwise, so records without a checksum never share a hash.
type Record struct {
	ID            string
	Name          string
	MimeType      string
	Size          int64
	CreatedTime   time.Time
	Hash          string
	ThumbnailLink string
	Origin        Origin
}

// FromProvider normalizes a provider listing entry.
func FromProvider(f provider.File) Record {
	hash := f.Checksum
	if hash == "" {
		hash = f.ID
	}
	size := f.Size
	if size < 0 {
		size = 0
	}
	return Record{
		ID:            f.ID,
		Name:          f.Name,
		MimeType:      f.MimeType,
		Size:          size,
		CreatedTime:   f.CreatedTime,
		Hash:          hash,
		ThumbnailLink: f.ThumbnailLink,
		Origin:        OriginDrive,
	}
}

// Demo is a synthetic file produced without any provider.
type Demo struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	CreatedTime time.Time
	Set         string
}

// FromDemo normalizes a synthetic file. All files of one set share a hash.
func FromDemo(d Demo) Record {
	return Record{
		ID:          d.ID,
		Name:        d.Name,
		MimeType:    d.MimeType,
		Size:        d.Size,
		CreatedTime: d.CreatedTime,
		Hash:        "mock_hash_" + d.Set,
		Origin:      OriginDemo,
	}
}

// TotalSize sums the sizes of the records whose ID is in ids.
func TotalSize(records []Record, ids map[string]struct{}) int64 {
	var total int64
	for _, r := range records {
		if _, ok := ids[r.ID]; ok {
			total += r.Size
		}
	}
	return total
}

// Without returns the records whose ID is not in ids, in order.
func Without(records []Record, ids map[string]struct{}) []Record {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := ids[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	return kept
}
