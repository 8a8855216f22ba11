package main

import (
	"context"

	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	ingestcommand "github.com/wina-futureobjects/track-futura-new-sub007/command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

var outboxBatch int

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Operate the event outbox",
}

var outboxDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish one batch of pending outbox events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			stats, err := execute[core.DispatchStats](ctx, rt.Facade.Commands().DispatchOutbox, ingestcommand.DispatchOutboxMessage{BatchSize: outboxBatch})
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		})
	},
}

func init() {
	outboxDispatchCmd.Flags().IntVar(&outboxBatch, "batch", 0, "events to claim (default outbox.batch_size)")
	outboxCmd.AddCommand(outboxDispatchCmd)
}
