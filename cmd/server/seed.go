package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/retail-ledger/api"
)

var seedScenarios []string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo scenarios",
	Long: `Loads one or more demo scenarios into the configured database. Without
--scenario the available scenarios are listed.`,
	Example: `  server seed --scenario partial-payments --scenario overdue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(seedScenarios) == 0 {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range api.Scenarios() {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Description)
			}
			return tw.Flush()
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, log, appOptions{withCache: true})
		if err != nil {
			return err
		}
		defer a.close()

		for _, id := range seedScenarios {
			if err := api.LoadScenario(ctx, a.service, id); err != nil {
				return fmt.Errorf("scenario %s: %w", id, err)
			}
			log.Info().Str("scenario", id).Msg("scenario loaded")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringSliceVar(&seedScenarios, "scenario", nil, "scenario id to load (repeatable)")
}
