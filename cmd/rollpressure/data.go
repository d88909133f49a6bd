package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/app"
	"github.com/dgnsrekt/roll-pressure/internal/cftc"
	"github.com/dgnsrekt/roll-pressure/internal/export"
	"github.com/dgnsrekt/roll-pressure/internal/ingest"
	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/pipeline"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

func refreshDataCmd() *cobra.Command {
	var (
		days  int
		force bool
	)

	cmd := &cobra.Command{
		Use:   "refresh-data",
		Short: "Fetch CFTC reports into the raw cache without computing outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			components, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			if days <= 0 {
				days = cfg.Ingest.Days
			}
			markets, err := market.Normalize(cfg.Markets)
			if err != nil {
				return err
			}
			if len(markets) == 0 {
				markets = market.Names()
			}
			if force {
				ctx = cftc.WithForceRefresh(ctx)
			}

			tasks := ingest.TasksFor(markets, days, time.Now().UTC().Truncate(24*time.Hour))
			result, err := components.Ingest.Execute(ctx, tasks)
			if err != nil {
				return err
			}

			fmt.Printf("Markets: %d  Success: %d  Not found: %d  Failed: %d\n",
				result.Total, result.Success, result.NotFound, result.Failed)
			fmt.Printf("Rows: %d  Bad dates: %d  Bad numbers: %d  Missing expiry: %d\n",
				len(result.Rows), result.BadDates, result.BadNumerics, result.MissingExpiry)
			for _, e := range result.Errors {
				fmt.Printf("  Error: %s\n", e)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d markets failed", result.Failed, result.Total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "days of history to fetch (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "refetch even when cached")

	return cmd
}

func buildOutputsCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "build-outputs",
		Short: "Re-export a processed CSV as JSONL and Parquet, uploading to S3 when enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path, runDate, rows, err := loadProcessed(input)
			if err != nil {
				return err
			}

			components, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			opts := app.OutputOptions(cfg)
			opts.CSV = false
			if !opts.JSONL && !opts.Parquet {
				return fmt.Errorf("jsonl and parquet outputs are both disabled")
			}

			logger.Info("rebuilding outputs",
				zap.String("input", path),
				zap.Int("rows", len(rows)),
				zap.String("runDate", runDate.Format(rollpressure.DateLayout)),
			)

			pub, err := components.Runner.Publish(ctx, uuid.NewString(), runDate, rows, pipeline.PublishOptions{
				Output: opts,
				Upload: true,
			})
			if err != nil {
				return err
			}

			for _, f := range pub.Files {
				fmt.Printf("Wrote %s\n", f)
			}
			for _, k := range pub.Uploaded {
				fmt.Printf("Uploaded %s\n", k)
			}
			for _, w := range pub.Warnings {
				fmt.Printf("Warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "processed CSV (default: latest roll_pressure_*.csv)")

	return cmd
}

func alertsCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print the latest alert of each market from a processed CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, rows, err := loadProcessed(input)
			if err != nil {
				return err
			}
			fmt.Printf("Source: %s\n", path)
			printAlerts(os.Stdout, rollpressure.LatestAlerts(rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "processed CSV (default: latest roll_pressure_*.csv)")

	return cmd
}

// loadProcessed reads input, or the newest processed CSV when input is empty.
// The run date comes from the file name when available, else the last row.
func loadProcessed(input string) (string, time.Time, []rollpressure.DerivedRow, error) {
	path := input
	var runDate time.Time
	if path == "" {
		var err error
		path, runDate, err = export.LatestProcessed(cfg.Paths.DataProcessed)
		if err != nil {
			return "", time.Time{}, nil, err
		}
	}

	rows, err := export.ReadCSVFile(path)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if len(rows) == 0 {
		return "", time.Time{}, nil, fmt.Errorf("%s has no rows", path)
	}
	if runDate.IsZero() {
		runDate = rollpressure.Summarize(rows).Last
	}
	return path, runDate, rows, nil
}
