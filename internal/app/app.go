// Package app wires configuration into the pipeline components shared by the
// rollpressure CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/roll-pressure/internal/cftc"
	"github.com/dgnsrekt/roll-pressure/internal/config"
	"github.com/dgnsrekt/roll-pressure/internal/expiry"
	"github.com/dgnsrekt/roll-pressure/internal/export"
	"github.com/dgnsrekt/roll-pressure/internal/ingest"
	"github.com/dgnsrekt/roll-pressure/internal/metrics"
	"github.com/dgnsrekt/roll-pressure/internal/notify"
	"github.com/dgnsrekt/roll-pressure/internal/pipeline"
	"github.com/dgnsrekt/roll-pressure/internal/staging"
	"github.com/dgnsrekt/roll-pressure/internal/store"
)

// CalendarMonthsAhead is how far a generated expiry calendar reaches.
const CalendarMonthsAhead = 24

// NewLogger builds the process logger. With file logging enabled, entries are
// also written as JSON to a size-rotated file named after the binary.
func NewLogger(name string, verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	if logCfg != nil && logCfg.Level != "" && !verbose {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if logCfg == nil || !logCfg.Enabled {
		return logger, nil
	}

	if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logCfg.Directory, name+".log"),
		MaxSize:    logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotator),
		zapConfig.Level,
	)

	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// Components are the wired collaborators of one process.
type Components struct {
	Runner   *pipeline.Runner
	Ingest   *ingest.Manager
	Calendar *expiry.Calendar
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Repo     *store.Repository

	closers []func()
}

// Close releases the cache and database handles.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build wires the CFTC client, expiry calendar, ingestion manager, outputs
// and optional sinks into a pipeline runner.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.New()}

	httpClient := cftc.NewClient(cftc.Options{
		BaseURL:         cfg.CFTC.BaseURL,
		Dataset:         cfg.CFTC.Dataset,
		AppToken:        cfg.CFTC.AppToken,
		RatePerSecond:   cfg.CFTC.RatePerSecond,
		Timeout:         time.Duration(cfg.CFTC.TimeoutSec) * time.Second,
		RetryDelay:      time.Duration(cfg.CFTC.RetryDelay) * time.Second,
		RetryCount:      cfg.CFTC.RetryCount,
		BreakerFailures: cfg.CFTC.BreakerFailures,
		BreakerTimeout:  time.Duration(cfg.CFTC.BreakerTimeout) * time.Second,
		Observer:        c.Metrics.CFTCRequest,
	}, logger)

	cached, err := cftc.NewCachedClient(httpClient, cfg.Paths.DataRaw,
		time.Duration(cfg.CFTC.CacheTTLHours)*time.Hour, false, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cftc cache: %w", err)
	}
	c.closers = append(c.closers, cached.Close)

	cal, err := expiry.Open(cfg.Paths.CalendarFile, expiry.MonthsBackFor(cfg.Ingest.Days), CalendarMonthsAhead, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening expiry calendar: %w", err)
	}
	windowStart := time.Now().AddDate(0, 0, -cfg.Ingest.Days)
	for _, name := range cfg.Markets {
		if !cal.Covers(name, windowStart, time.Now()) {
			logger.Warn("expiry calendar does not cover the ingest window, rows outside it are skipped",
				zap.String("market", name),
				zap.String("path", cfg.Paths.CalendarFile),
				zap.Int("days", cfg.Ingest.Days),
			)
		}
	}
	c.Calendar = cal
	c.Ingest = ingest.NewManager(cached, cal, cfg.Ingest.Workers, logger)

	notifyCfg := notify.LoadConfig()
	if err := notifyCfg.Validate(); err != nil {
		c.Close()
		return nil, err
	}
	c.Notifier = notify.New(notifyCfg, logger)

	deps := pipeline.Deps{
		Fetcher:  c.Ingest,
		Staging:  staging.NewManager(cfg.Paths.DataProcessed),
		Notifier: c.Notifier,
		Observer: c.Metrics,
	}

	if cfg.Storage.S3.Enabled {
		s3cfg := cfg.Storage.S3
		uploader, err := export.NewS3Uploader(ctx, export.S3Options{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Prefix:          s3cfg.Prefix,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		}, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("creating s3 uploader: %w", err)
		}
		deps.Uploader = uploader
	}

	if cfg.Storage.Postgres.Enabled {
		repo, err := store.Open(ctx, cfg.Storage.Postgres.DSN, time.Duration(cfg.Storage.Postgres.TimeoutSec)*time.Second)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		c.closers = append(c.closers, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("closing postgres", zap.Error(err))
			}
		})
		if err := repo.Migrate(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		c.Repo = repo
		deps.Store = repo
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Params:  cfg.Params(),
		Markets: cfg.Markets,
		Days:    cfg.Ingest.Days,
		Output:  OutputOptions(cfg),
	}, deps, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Runner = runner
	return c, nil
}

// OutputOptions maps the output config section.
func OutputOptions(cfg *config.Config) export.Options {
	return export.Options{
		CSV:                cfg.Output.CSV,
		JSONL:              cfg.Output.JSONL,
		Parquet:            cfg.Output.Parquet,
		ParquetCompression: cfg.Output.ParquetCompression,
	}
}
