package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"creditengine/internal/app"
)

func backfillFairnessCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill-fairness",
		Short: "Attach fairness records to decisions made while metrics were unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(engine *app.App) error {
				n, err := engine.Recorder.Backfill(cmd.Context(), engine.Store, limit)
				if err != nil {
					return fmt.Errorf("backfill fairness: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d decisions\n", n)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum decisions to backfill")
	return cmd
}
