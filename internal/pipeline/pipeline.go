// Package pipeline runs the end-to-end roll pressure job: ingest CFTC data,
// compute derived rows, write outputs and fan out to the optional sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/roll-pressure/internal/cftc"
	"github.com/dgnsrekt/roll-pressure/internal/export"
	"github.com/dgnsrekt/roll-pressure/internal/ingest"
	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/notify"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
	"github.com/dgnsrekt/roll-pressure/internal/staging"
)

var ErrNoData = errors.New("no input rows")

// Fetcher loads engine input for a batch of tasks.
type Fetcher interface {
	Execute(ctx context.Context, tasks []ingest.Task) (*ingest.BatchResult, error)
}

// Uploader copies committed files to remote storage.
type Uploader interface {
	Upload(ctx context.Context, files []string, runDate time.Time) ([]string, error)
}

// RowStore persists derived rows.
type RowStore interface {
	UpsertRows(ctx context.Context, runID string, rows []rollpressure.DerivedRow) (int, error)
}

// Observer records run outcomes, typically *metrics.Metrics.
type Observer interface {
	ObserveRows(rows []rollpressure.DerivedRow)
	RunFinished(status string, d time.Duration)
}

// Config holds the static run settings.
type Config struct {
	Params  rollpressure.Params
	Markets []string
	Days    int
	Output  export.Options
}

// Deps are the collaborators of a Runner. Uploader, Store, Notifier and
// Observer are optional.
type Deps struct {
	Fetcher  Fetcher
	Staging  *staging.Manager
	Uploader Uploader
	Store    RowStore
	Notifier notify.Notifier
	Observer Observer
	Now      func() time.Time
}

// Options override Config for a single run.
type Options struct {
	Days    int
	Markets []string
	DryRun  bool
	Force   bool
}

// Result describes a finished run.
type Result struct {
	RunID     string
	RunDate   time.Time
	StartedAt time.Time
	Batch     *ingest.BatchResult
	Rows      []rollpressure.DerivedRow
	Summary   rollpressure.Summary
	Alerts    []rollpressure.DerivedRow
	Files     []string
	Uploaded  []string
	Stored    int
	Warnings  []string
	Duration  time.Duration
}

type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

func NewRunner(cfg Config, deps Deps, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if deps.Staging == nil {
		return nil, errors.New("pipeline: staging manager is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = &notify.NoopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run executes one pipeline run. Failures of the optional sinks are logged
// and reported in Result.Warnings; they do not fail the run.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	start := r.deps.Now()
	runDate := truncateDay(start)
	result := &Result{RunID: uuid.NewString(), RunDate: runDate, StartedAt: start}

	logger := r.logger.With(zap.String("runID", result.RunID))

	err := r.run(ctx, opts, result, logger)
	result.Duration = r.deps.Now().Sub(start)

	if err != nil {
		r.observeFinish("failure", result.Duration)
		var details []string
		if result.Batch != nil {
			details = result.Batch.Errors
		}
		if !opts.DryRun {
			if nerr := r.deps.Notifier.SendFailure(ctx, runDate.Format(rollpressure.DateLayout), result.Duration, err, details); nerr != nil {
				logger.Warn("failure notification failed", zap.Error(nerr))
			}
		}
		return result, err
	}

	r.observeFinish("success", result.Duration)
	logger.Info("pipeline complete",
		zap.Int("rows", result.Summary.Rows),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("files", len(result.Files)),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (r *Runner) run(ctx context.Context, opts Options, result *Result, logger *zap.Logger) error {
	markets := r.cfg.Markets
	if len(opts.Markets) > 0 {
		markets = opts.Markets
	}
	markets, err := market.Normalize(markets)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		markets = market.Names()
	}

	days := r.cfg.Days
	if opts.Days > 0 {
		days = opts.Days
	}

	if opts.Force {
		ctx = cftc.WithForceRefresh(ctx)
	}

	tasks := ingest.TasksFor(markets, days, result.RunDate)
	logger.Info("ingesting", zap.Strings("markets", markets), zap.Int("days", days))

	batch, err := r.deps.Fetcher.Execute(ctx, tasks)
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}
	result.Batch = batch

	if batch.Failed > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d of %d markets failed to ingest", batch.Failed, batch.Total))
	}
	if batch.MissingExpiry > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d rows had no expiry and use 0 days", batch.MissingExpiry))
	}
	if len(batch.Rows) == 0 {
		return ErrNoData
	}

	rows, err := rollpressure.Compute(batch.Rows, r.cfg.Params)
	if err != nil {
		return fmt.Errorf("computing roll pressure: %w", err)
	}
	result.Rows = rows
	result.Summary = rollpressure.Summarize(rows)
	result.Alerts = rollpressure.LatestAlerts(rows)

	logger.Info("computed roll pressure",
		zap.Int("rows", result.Summary.Rows),
		zap.Int("invalid", result.Summary.Invalid),
		zap.Int("alertRows", result.Summary.Alerts),
	)
	for _, a := range result.Alerts {
		logger.Info("alert",
			zap.String("market", a.Market),
			zap.String("date", a.Date.Format(rollpressure.DateLayout)),
			zap.Float64("rollPressure", a.RollPressure),
			zap.Float64("posScore", a.PosScore),
			zap.Int("daysToExpiry", a.DaysToExpiry),
		)
	}

	if r.deps.Observer != nil {
		r.deps.Observer.ObserveRows(rows)
	}

	if opts.DryRun {
		logger.Info("dry run, skipping outputs")
		return nil
	}

	pub, err := r.Publish(ctx, result.RunID, result.RunDate, rows, PublishOptions{Output: r.cfg.Output, Upload: true, Store: true})
	if err != nil {
		return err
	}
	result.Files = pub.Files
	result.Uploaded = pub.Uploaded
	result.Stored = pub.Stored
	result.Warnings = append(result.Warnings, pub.Warnings...)

	runDate := result.RunDate.Format(rollpressure.DateLayout)
	if err := r.deps.Notifier.SendAlerts(ctx, result.Alerts, runDate); err != nil {
		logger.Warn("alert notification failed", zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("notify: %v", err))
	}
	if err := r.deps.Notifier.SendSuccess(ctx, result.Summary, runDate, r.deps.Now().Sub(result.StartedAt)); err != nil {
		logger.Warn("success notification failed", zap.Error(err))
	}
	return nil
}

// PublishOptions selects what Publish does after writing files.
type PublishOptions struct {
	Output export.Options
	Upload bool
	Store  bool
}

// Published lists what Publish produced.
type Published struct {
	Files    []string
	Uploaded []string
	Stored   int
	Warnings []string
}

// Publish writes the enabled artifacts through staging into the processed
// directory, then uploads and stores them concurrently. Only the local write
// is fatal.
func (r *Runner) Publish(ctx context.Context, runID string, runDate time.Time, rows []rollpressure.DerivedRow, opts PublishOptions) (*Published, error) {
	files, err := r.writeOutputs(runID, runDate, rows, opts.Output)
	if err != nil {
		return nil, err
	}

	pub := &Published{Files: files}
	var mu sync.Mutex
	warn := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		pub.Warnings = append(pub.Warnings, fmt.Sprintf(format, args...))
	}

	var g errgroup.Group
	if opts.Upload && r.deps.Uploader != nil && len(files) > 0 {
		g.Go(func() error {
			keys, err := r.deps.Uploader.Upload(ctx, files, runDate)
			if err != nil {
				r.logger.Warn("s3 upload failed", zap.Error(err))
				warn("s3: %v", err)
			}
			mu.Lock()
			pub.Uploaded = keys
			mu.Unlock()
			return nil
		})
	}
	if opts.Store && r.deps.Store != nil {
		g.Go(func() error {
			n, err := r.deps.Store.UpsertRows(ctx, runID, rows)
			if err != nil {
				r.logger.Warn("postgres upsert failed", zap.Error(err))
				warn("postgres: %v", err)
				return nil
			}
			mu.Lock()
			pub.Stored = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return pub, nil
}

func (r *Runner) writeOutputs(runID string, runDate time.Time, rows []rollpressure.DerivedRow, opts export.Options) ([]string, error) {
	artifacts := export.Artifacts(rows, runDate, opts)
	if len(artifacts) == 0 {
		return nil, nil
	}

	stg := r.deps.Staging
	if err := stg.PrepareStaging(runID); err != nil {
		return nil, fmt.Errorf("preparing staging: %w", err)
	}
	defer func() {
		if err := stg.CleanupStaging(runID); err != nil {
			r.logger.Warn("failed to cleanup staging", zap.String("runID", runID), zap.Error(err))
		}
	}()

	for _, a := range artifacts {
		n, err := stg.WriteToStaging(runID, a.Name, a.Write)
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", a.Name, err)
		}
		r.logger.Debug("staged artifact", zap.String("name", a.Name), zap.Int64("bytes", n))
	}

	files, err := stg.CommitStaging(runID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("outputs written", zap.Strings("files", files))
	return files, nil
}

func (r *Runner) observeFinish(status string, d time.Duration) {
	if r.deps.Observer != nil {
		r.deps.Observer.RunFinished(status, d)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
