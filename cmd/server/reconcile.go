package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/retail-ledger/account"
)

var reconcileCustomer string

// reconcileCmd runs the same repair the scheduler does, once.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair stored balances from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, log, appOptions{withCache: true})
		if err != nil {
			return err
		}
		defer a.close()

		var drifts []account.Drift
		if reconcileCustomer != "" {
			d, err := a.service.Reconcile(ctx, account.CustomerID(reconcileCustomer))
			if err != nil {
				return err
			}
			drifts = append(drifts, *d)
		} else {
			drifts, err = a.service.ReconcileAll(ctx)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		repaired := 0
		for _, d := range drifts {
			if !d.Repaired {
				continue
			}
			repaired++
			fmt.Fprintf(out, "%s: stored %s, ledger %s\n", d.CustomerID, d.Stored, d.Replayed)
		}
		fmt.Fprintf(out, "checked %d, repaired %d\n", len(drifts), repaired)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCustomer, "customer", "", "reconcile only this customer id")
}
