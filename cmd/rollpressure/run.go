package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/roll-pressure/internal/app"
	"github.com/dgnsrekt/roll-pressure/internal/notify"
	"github.com/dgnsrekt/roll-pressure/internal/pipeline"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// maxPrintedAlerts caps the alert list printed after a run.
const maxPrintedAlerts = 5

func runCmd() *cobra.Command {
	var (
		days    int
		markets []string
		dryRun  bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: ingest, compute, write outputs, store and notify",
		Long: `Fetch CFTC positioning for the configured markets, compute roll pressure,
write the processed outputs and fan out to S3, Postgres and ntfy when enabled.

Examples:
  # Full run with config defaults
  rollpressure run

  # Last 400 days of WTI only, without writing anything
  rollpressure run --markets wti --days 400 --dry-run

  # Ignore the raw CFTC cache
  rollpressure run --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			components, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			result, err := components.Runner.Run(ctx, pipeline.Options{
				Days:    days,
				Markets: markets,
				DryRun:  dryRun,
				Force:   force,
			})
			if err != nil {
				return err
			}

			printResult(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "days of history to fetch (default from config)")
	cmd.Flags().StringSliceVar(&markets, "markets", nil, "markets to process, e.g. wti,brent (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute only, skip outputs, storage and notifications")
	cmd.Flags().BoolVar(&force, "force", false, "refetch CFTC data even when cached")

	return cmd
}

func printResult(w io.Writer, result *pipeline.Result) {
	s := result.Summary
	fmt.Fprintf(w, "Run %s (%s)\n", result.RunID, result.RunDate.Format(rollpressure.DateLayout))
	fmt.Fprintf(w, "  Rows: %d  Invalid: %d  Alert rows: %d\n", s.Rows, s.Invalid, s.Alerts)
	if !s.First.IsZero() {
		fmt.Fprintf(w, "  Range: %s to %s\n", s.First.Format(rollpressure.DateLayout), s.Last.Format(rollpressure.DateLayout))
	}
	for _, m := range s.Markets {
		fmt.Fprintf(w, "  %-6s rows=%d invalid=%d alerts=%d rp=[%.3f, %.3f] mean=%.3f\n",
			m.Market, m.Rows, m.Invalid, m.Alerts, m.RollPressure.Min, m.RollPressure.Max, m.MeanPressure)
	}

	for _, f := range result.Files {
		fmt.Fprintf(w, "  Wrote %s\n", f)
	}
	for _, k := range result.Uploaded {
		fmt.Fprintf(w, "  Uploaded %s\n", k)
	}
	if result.Stored > 0 {
		fmt.Fprintf(w, "  Stored %d rows\n", result.Stored)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  Warning: %s\n", warning)
	}

	printAlerts(w, result.Alerts)
	fmt.Fprintf(w, "Completed in %s\n", result.Duration.Round(time.Millisecond))
}

func printAlerts(w io.Writer, alerts []rollpressure.DerivedRow) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	fmt.Fprintf(w, "Alerts (%d):\n", len(alerts))
	for i, a := range alerts {
		if i == maxPrintedAlerts {
			fmt.Fprintf(w, "  ... and %d more\n", len(alerts)-maxPrintedAlerts)
			break
		}
		fmt.Fprintf(w, "  %s\n", notify.FormatAlertLine(a))
	}
}
