// Package scan retrieves the complete file listing for a session, page by
// page, and reports progress as a stream of events.
package scan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/entro314-labs/drivepurge/internal/files"
	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/metrics"
	"github.com/entro314-labs/drivepurge/internal/provider"
)

const (
	DefaultPageSize = 100
	DefaultMaxPages = 6

	progressPerPage   = 15
	progressFetchCap  = 90
	progressAnalyzing = 95
)

// Event is one step of a scan. The last event has Done set and carries
// either Files or Err, never both.
type Event struct {
	Progress    int
	Status      string
	CurrentFile string

	Done      bool
	Files     []files.Record
	Truncated bool
	Err       error
}

// Runner streams events into out and closes it when finished.
type Runner interface {
	Run(ctx context.Context, out chan<- Event)
}

// Options bounds a scan.
type Options struct {
	PageSize int
	// MaxPages stops pagination even when a continuation token remains.
	MaxPages int
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Engine scans through a provider.Lister.
type Engine struct {
	lister   provider.Lister
	pageSize int
	maxPages int
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewEngine(lister provider.Lister, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Engine{
		lister:   lister,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      logging.OrNop(opts.Logger).Named("scan"),
		metrics:  opts.Metrics,
	}
}

// For binds the engine to a credential.
func (e *Engine) For(token string) Runner {
	return boundScan{engine: e, token: token}
}

type boundScan struct {
	engine *Engine
	token  string
}

func (b boundScan) Run(ctx context.Context, out chan<- Event) {
	b.engine.run(ctx, b.token, out)
}

func (e *Engine) run(ctx context.Context, token string, out chan<- Event) {
	defer close(out)

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		e.metrics.ScanFinished(files.OriginDrive.String(), 0, err)
		e.log.Warn("scan failed", zap.Error(err))
		send(Event{Done: true, Err: err})
	}

	if e.lister == nil {
		fail(errors.New("scan: no file listing service"))
		return
	}
	if token == "" {
		fail(fmt.Errorf("scan: %w", provider.ErrAuthUnavailable))
		return
	}

	progress := 0
	current := ""
	if !send(Event{Progress: progress, Status: "Connecting to Drive API..."}) {
		return
	}

	var raw []provider.File
	pageToken := ""
	pages := 0
	truncated := false
	for {
		if pages >= e.maxPages {
			truncated = pageToken != ""
			break
		}
		if !send(Event{Progress: progress, Status: fmt.Sprintf("Fetching page %d...", pages+1), CurrentFile: current}) {
			return
		}

		page, err := e.lister.ListPage(ctx, token, pageToken, e.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(fmt.Errorf("list page %d: %w", pages+1, err))
			return
		}
		e.metrics.PageFetched()
		pages++

		raw = append(raw, page.Files...)
		if len(page.Files) > 0 {
			current = page.Files[len(page.Files)-1].Name
		}
		progress = max(progress, min(progressFetchCap, pages*progressPerPage))
		e.log.Debug("page fetched", zap.Int("page", pages), zap.Int("files", len(page.Files)))

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if truncated {
		e.log.Info("page cap reached, results are partial", zap.Int("max_pages", e.maxPages), zap.Int("files", len(raw)))
	}

	if !send(Event{Progress: progressAnalyzing, Status: "Analyzing duplicates...", CurrentFile: current}) {
		return
	}

	records := make([]files.Record, 0, len(raw))
	for _, f := range raw {
		records = append(records, files.FromProvider(f))
	}
	e.metrics.ScanFinished(files.OriginDrive.String(), len(records), nil)
	e.log.Info("scan complete", zap.Int("pages", pages), zap.Int("files", len(records)))
	send(Event{
		Progress:    100,
		Status:      "Scan complete",
		CurrentFile: current,
		Done:        true,
		Files:       records,
		Truncated:   truncated,
	})
}

// Collect drains a runner and returns the terminal event.
func Collect(ctx context.Context, r Runner) (Event, []Event) {
	ch := make(chan Event)
	go r.Run(ctx, ch)
	var events []Event
	var last Event
	for ev := range ch {
		events = append(events, ev)
		last = ev
	}
	return last, events
}
