package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/app"
	"github.com/dgnsrekt/roll-pressure/internal/expiry"
	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Manage the futures expiry calendar",
	}
	cmd.AddCommand(calendarGenerateCmd())
	cmd.AddCommand(calendarShowCmd())
	return cmd
}

func calendarGenerateCmd() *cobra.Command {
	var months, monthsBack int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the default WTI and Brent expiry calendar and save it",
		Long: `Generate approximate last trading days from exchange rules:

  WTI (NYMEX)  3 business days before the 25th of the month before delivery
  Brent (ICE)  last business day of the second month before delivery

Verify the dates against the exchange calendars before relying on them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if months < 1 {
				return fmt.Errorf("--months must be >= 1")
			}
			if monthsBack < 0 {
				monthsBack = expiry.MonthsBackFor(cfg.Ingest.Days)
			}

			cal := expiry.Generate(time.Now(), monthsBack, months)
			if err := cal.Save(cfg.Paths.CalendarFile); err != nil {
				return err
			}

			logger.Info("expiry calendar generated",
				zap.String("path", cfg.Paths.CalendarFile),
				zap.Int("contracts", len(cal.Contracts())),
			)
			fmt.Printf("Wrote %d contracts to %s\n", len(cal.Contracts()), cfg.Paths.CalendarFile)
			return nil
		},
	}

	cmd.Flags().IntVar(&months, "months", app.CalendarMonthsAhead, "months of contracts to generate ahead of today")
	cmd.Flags().IntVar(&monthsBack, "months-back", -1, "months of contracts to generate before today (default: enough to cover ingest.days)")

	return cmd
}

func calendarShowCmd() *cobra.Command {
	var mkt string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the expiry calendar and the current front contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := expiry.Load(cfg.Paths.CalendarFile)
			if err != nil {
				return fmt.Errorf("loading calendar (run 'calendar generate' first): %w", err)
			}

			markets := market.Names()
			contracts := cal.Contracts()
			if mkt != "" {
				spec, err := market.Lookup(mkt)
				if err != nil {
					return err
				}
				markets = []string{spec.Name}
				contracts = cal.ForMarket(spec.Name)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tCONTRACT\tEXPIRY\tEXCHANGE\tDELIVERY")
			for _, c := range contracts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					c.Symbol, c.ContractCode, c.ExpiryDate.Format(rollpressure.DateLayout), c.Exchange, c.DeliveryMonth)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			today := time.Now().UTC().Truncate(24 * time.Hour)
			fmt.Println()
			for _, name := range markets {
				front, ok := cal.FrontContract(name, today)
				if !ok {
					fmt.Printf("%s: calendar does not cover %s\n", name, today.Format(rollpressure.DateLayout))
					continue
				}
				days, _ := cal.DaysToExpiry(name, today)
				fmt.Printf("%s front: %s expires %s (%d days)\n",
					name, front.ContractCode, front.ExpiryDate.Format(rollpressure.DateLayout), days)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mkt, "market", "", "only show one market, e.g. wti")

	return cmd
}
