// Package trash moves selected files to the provider trash in bounded,
// concurrent waves. Nothing is ever deleted permanently.
package trash

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/metrics"
	"github.com/entro314-labs/drivepurge/internal/provider"
)

const (
	DefaultBatchSize = 5
	DemoLatency      = 1500 * time.Millisecond
)

// Deleter removes a list of file IDs.
type Deleter interface {
	Delete(ctx context.Context, ids []string) (Report, error)
}

// Outcome is the result for a single ID that failed.
type Outcome struct {
	ID  string
	Err error
}

// Report itemizes what a delete did.
type Report struct {
	Requested int
	Trashed   []string
	Failed    []Outcome
	Waves     int
}

// PartialFailureError is returned when at least one request failed. Requests
// that succeeded are not rolled back.
type PartialFailureError struct {
	Requested int
	Trashed   int
	Failed    []Outcome
	cause     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d files could not be moved to trash: %v", len(e.Failed), e.Requested, e.cause)
}

func (e *PartialFailureError) Unwrap() []error {
	return multierr.Errors(e.cause)
}

// NothingTrashed reports whether every request failed, leaving the account
// untouched and the delete safe to retry.
func (e *PartialFailureError) NothingTrashed() bool {
	return e.Trashed == 0
}

// Options configures an Executor.
type Options struct {
	BatchSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Executor trashes files through a provider.Trasher.
type Executor struct {
	trasher   provider.Trasher
	batchSize int
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewExecutor(trasher provider.Trasher, opts Options) *Executor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Executor{
		trasher:   trasher,
		batchSize: opts.BatchSize,
		log:       logging.OrNop(opts.Logger).Named("trash"),
		metrics:   opts.Metrics,
	}
}

// For binds the executor to a credential.
func (e *Executor) For(token string) Deleter {
	return boundDelete{executor: e, token: token}
}

type boundDelete struct {
	executor *Executor
	token    string
}

func (b boundDelete) Delete(ctx context.Context, ids []string) (Report, error) {
	return b.executor.run(ctx, b.token, ids)
}

// run issues ceil(len(ids)/batchSize) sequential waves. Every request in a
// wave runs to completion even if a sibling fails, and no request is retried.
func (e *Executor) run(ctx context.Context, token string, ids []string) (Report, error) {
	ids = append([]string(nil), ids...)
	report := Report{Requested: len(ids)}
	var cause error

	for start := 0; start < len(ids); start += e.batchSize {
		batch := ids[start:min(start+e.batchSize, len(ids))]
		errs := make([]error, len(batch))

		var g errgroup.Group
		for i, id := range batch {
			g.Go(func() error {
				errs[i] = e.trasher.Trash(ctx, token, id)
				return errs[i]
			})
		}
		_ = g.Wait()
		report.Waves++
		e.metrics.TrashWave()

		for i, id := range batch {
			e.metrics.TrashResult(errs[i])
			if errs[i] != nil {
				report.Failed = append(report.Failed, Outcome{ID: id, Err: errs[i]})
				cause = multierr.Append(cause, fmt.Errorf("%s: %w", id, errs[i]))
				continue
			}
			report.Trashed = append(report.Trashed, id)
		}
	}

	if len(report.Failed) > 0 {
		e.log.Warn("some files could not be moved to trash",
			zap.Int("requested", report.Requested),
			zap.Int("failed", len(report.Failed)),
			zap.Error(cause),
		)
		return report, &PartialFailureError{
			Requested: report.Requested,
			Trashed:   len(report.Trashed),
			Failed:    report.Failed,
			cause:     cause,
		}
	}
	e.log.Info("files moved to trash", zap.Int("count", len(report.Trashed)), zap.Int("waves", report.Waves))
	return report, nil
}

// Simulated is the demo-mode deleter: it waits Latency and reports success
// without touching anything.
type Simulated struct {
	Latency time.Duration
}

func (s Simulated) Delete(ctx context.Context, ids []string) (Report, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Report{Requested: len(ids)}, ctx.Err()
		}
	}
	return Report{Requested: len(ids), Trashed: append([]string(nil), ids...)}, nil
}
