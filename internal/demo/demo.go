// Package demo produces a synthetic duplicate dataset and simulates the scan
// and delete steps without a network.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/entro314-labs/drivepurge/internal/files"
	"github.com/entro314-labs/drivepurge/internal/metrics"
	"github.com/entro314-labs/drivepurge/internal/scan"
)

type fileType struct {
	mime string
	ext  string
}

var fileTypes = []fileType{
	{mime: "image/jpeg", ext: "jpg"},
	{mime: "application/pdf", ext: "pdf"},
	{mime: "video/mp4", ext: "mp4"},
	{mime: "application/zip", ext: "zip"},
}

// Set describes one group of identical synthetic files.
type Set struct {
	Name  string
	Count int
	Size  int64
	Type  int
}

// DefaultSets is the dataset shown in demo mode.
var DefaultSets = []Set{
	{Name: "Vacation_Bali_2023", Count: 3, Size: 4_500_000, Type: 0},
	{Name: "Q4_Financial_Report_Draft", Count: 2, Size: 1_200_000, Type: 1},
	{Name: "Project_Alpha_Backup", Count: 4, Size: 154_000_000, Type: 3},
	{Name: "IMG_20240101_120000", Count: 2, Size: 3_200_000, Type: 0},
}

const (
	maxAgeDays    = 300
	maxCopyOffset = 1000 // minutes
)

// Generate builds the records for sets. The first file of a set is the
// canonical one; copies are created up to maxCopyOffset minutes after it.
func Generate(rng *rand.Rand, now time.Time, sets []Set) []files.Record {
	var out []files.Record
	id := 1
	for _, set := range sets {
		ft := fileTypes[set.Type%len(fileTypes)]
		original := now.AddDate(0, 0, -rng.IntN(maxAgeDays))
		for i := 0; i < set.Count; i++ {
			created := original
			if i > 0 {
				created = original.Add(time.Duration(rng.IntN(maxCopyOffset)) * time.Minute)
			}
			out = append(out, files.FromDemo(files.Demo{
				ID:          fmt.Sprintf("mock_file_%d", id),
				Name:        fmt.Sprintf("%s.%s", set.Name, ft.ext),
				MimeType:    ft.mime,
				Size:        set.Size,
				CreatedTime: created,
				Set:         set.Name,
			}))
			id++
		}
	}
	return out
}

// Simulator emits the same event stream as a real scan, with timings chosen
// to look like one.
type Simulator struct {
	Sets   []Set
	Warmup time.Duration
	Tick   time.Duration
	Step   int
	Now    func() time.Time

	Metrics *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator returns a simulator with the default dataset and timings.
func NewSimulator(rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulator{
		Sets:   DefaultSets,
		Warmup: 500 * time.Millisecond,
		Tick:   100 * time.Millisecond,
		Step:   5,
		Now:    time.Now,
		rng:    rng,
	}
}

func (s *Simulator) Run(ctx context.Context, out chan<- scan.Event) {
	defer close(out)

	send := func(ev scan.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	wait := func(d time.Duration) bool {
		if d <= 0 {
			return ctx.Err() == nil
		}
		select {
		case <-time.After(d):
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(scan.Event{Status: "Initializing Demo..."}) || !wait(s.Warmup) {
		return
	}

	step := s.Step
	if step <= 0 {
		step = 5
	}
	status := "Initializing Demo..."
	current := ""
	for p := step; p < 100; p += step {
		if !wait(s.Tick) {
			return
		}
		if p > 20 {
			status = "Analysing mock files..."
			current = fmt.Sprintf("Checking IMG_%d.jpg", s.intN(9000))
		}
		if !send(scan.Event{Progress: p, Status: status, CurrentFile: current}) {
			return
		}
	}
	if !wait(s.Tick) {
		return
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	s.mu.Lock()
	records := Generate(s.rng, now(), s.Sets)
	s.mu.Unlock()
	s.Metrics.ScanFinished(files.OriginDemo.String(), len(records), nil)
	send(scan.Event{Progress: 100, Status: "Scan complete", CurrentFile: current, Done: true, Files: records})
}

func (s *Simulator) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
