package main

import (
	"fmt"

	"ledger-backend/internal/setup"

	"github.com/spf13/cobra"
)

func newSeedCommand(rt *runtime) *cobra.Command {
	var chartFile string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the chart of accounts",
		Long: `Seed account types, categories, starter accounts and transaction types.
Existing rows are kept, so the command can be run repeatedly.

Example:
  server seed
  server seed --chart chart.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chartFile == "" {
				chartFile = rt.cfg.ChartFile
			}

			var (
				chart *setup.Chart
				err   error
			)
			if chartFile != "" {
				chart, err = setup.LoadChart(chartFile)
			} else {
				chart, err = setup.DefaultChart()
			}
			if err != nil {
				return err
			}

			db, closeDB, err := rt.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			res, err := setup.Seed(cmd.Context(), db, chart, rt.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d account types, %d categories, %d accounts, %d transaction types\n",
				res.AccountTypes, res.Categories, res.Accounts, res.TransactionTypes)
			return nil
		},
	}
	cmd.Flags().StringVar(&chartFile, "chart", "", "YAML chart of accounts (default is the built-in chart)")
	return cmd
}
