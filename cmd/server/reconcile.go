package main

import (
	"fmt"

	"ledger-backend/internal/accounts"

	"github.com/spf13/cobra"
)

func newReconcileCommand(rt *runtime) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached account balances with the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := rt.openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			svc := accounts.NewService(db, nil, rt.log.Named("accounts"))
			drifts, err := svc.Reconcile(cmd.Context(), repair)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(drifts) == 0 {
				fmt.Fprintln(out, "all cached balances match the journal")
				return nil
			}
			for _, d := range drifts {
				status := "drift"
				if d.Repaired {
					status = "repaired"
				}
				fmt.Fprintf(out, "%-20s cached %15s  journal %15s  %s\n",
					d.AccountNumber, d.Cached.StringFixed(2), d.Computed.StringFixed(2), status)
			}
			if !repair {
				return fmt.Errorf("%d account(s) drifted, rerun with --repair to fix", len(drifts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite drifting cached balances")
	return cmd
}
