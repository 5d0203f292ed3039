package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"creditengine/internal/app"
)

func relayCmd() *cobra.Command {
	var (
		once       bool
		partitions int32
		replicas   int16
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish audit outbox entries to Kafka",
		Long: `Move pending audit events from the outbox to the audit topic.

Without --once the relay polls until interrupted. With --once it drains the
outbox batch by batch and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(engine *app.App) error {
				ctx := cmd.Context()
				relay := engine.Relay()
				if relay == nil {
					return errors.New("KAFKA_BROKERS is not set")
				}
				if err := engine.Producer.EnsureTopic(ctx, partitions, replicas); err != nil {
					return err
				}

				if !once {
					engine.Logger.InfoContext(ctx, "audit relay started", "topic", engine.Config.Kafka.AuditTopic)
					if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				}

				total := 0
				for {
					n, err := relay.RelayOnce(ctx)
					if err != nil {
						return fmt.Errorf("relayed %d entries before failing: %w", total, err)
					}
					if n == 0 {
						break
					}
					total += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "relayed %d audit events\n", total)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "drain the outbox and exit")
	cmd.Flags().Int32Var(&partitions, "partitions", 3, "partitions when creating the audit topic")
	cmd.Flags().Int16Var(&replicas, "replication-factor", 1, "replication factor when creating the audit topic")
	return cmd
}
