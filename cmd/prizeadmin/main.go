package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	competition string
	since       string
	asJSON      bool
)

func main() {
	rootCmd := &cobra.Command{
		Short:         "Prize payout administration tool",
		Use:           "prizeadmin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.prizepayout.yaml)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "write JSON even on a terminal")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the payout tables",
		Args:  cobra.NoArgs,
		RunE:  migrate,
	}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Pay out finalised competitions",
		Args:  cobra.NoArgs,
		RunE:  process,
	}
	processCmd.Flags().StringVar(&competition, "competition", "", "pay out only this competition")

	invoiceCmd := &cobra.Command{
		Use:   "invoice [competition-id]",
		Short: "Run the invoice saga for a competition, or for recent payouts with --since",
		Args:  cobra.MaximumNArgs(1),
		RunE:  invoiceCompetitions,
	}
	invoiceCmd.Flags().StringVar(&since, "since", "", "invoice everything calculated within this long (e.g. 7d)")

	summaryCmd := &cobra.Command{
		Use:   "summary <competition-id>",
		Short: "Show a competition's payout",
		Args:  cobra.ExactArgs(1),
		RunE:  summary,
	}

	yearlyCmd := &cobra.Command{
		Use:   "yearly <year>",
		Short: "Show a year's payouts and top earners",
		Args:  cobra.ExactArgs(1),
		RunE:  yearly,
	}

	rootCmd.AddCommand(migrateCmd, processCmd, invoiceCmd, summaryCmd, yearlyCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
