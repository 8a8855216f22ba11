package main

import (
	"context"

	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	ingestcommand "github.com/wina-futureobjects/track-futura-new-sub007/command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	ingestquery "github.com/wina-futureobjects/track-futura-new-sub007/query"
)

var (
	quarantineID       string
	quarantineJobID    string
	quarantineReason   string
	quarantineStatus   string
	quarantineProvider string
	quarantineDelivery string
	quarantineLimit    int
	quarantineOffset   int
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and settle records that could not be linked to a job",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			page, err := query(ctx, rt.Facade.Queries().ListQuarantine, ingestquery.ListQuarantineMessage{
				Filter: core.QuarantineFilter{
					Status:      core.QuarantineStatus(quarantineStatus),
					ProviderID:  quarantineProvider,
					DeliveryRef: quarantineDelivery,
					Limit:       quarantineLimit,
					Offset:      quarantineOffset,
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		})
	},
}

var quarantineGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one quarantined record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			record, err := query(ctx, rt.Facade.Queries().GetQuarantine, ingestquery.GetQuarantineMessage{QuarantineID: quarantineID})
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		})
	},
}

var quarantineResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Link a quarantined record to a job and write its result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			result, err := execute[core.ResultRecord](ctx, rt.Facade.Commands().ResolveQuarantine, ingestcommand.ResolveQuarantineMessage{
				QuarantineID: quarantineID,
				JobID:        quarantineJobID,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

var quarantineDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Close a quarantined record without writing a result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			if _, err := execute[struct{}](ctx, rt.Facade.Commands().DiscardQuarantine, ingestcommand.DiscardQuarantineMessage{
				QuarantineID: quarantineID,
				Reason:       quarantineReason,
			}); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"quarantine_id": quarantineID, "status": core.QuarantineStatusDiscarded})
		})
	},
}

func init() {
	list := quarantineListCmd.Flags()
	list.StringVar(&quarantineStatus, "status", string(core.QuarantineStatusOpen), "open, resolved or discarded")
	list.StringVar(&quarantineProvider, "provider", "", "filter by provider id")
	list.StringVar(&quarantineDelivery, "delivery", "", "filter by delivery ledger id")
	list.IntVar(&quarantineLimit, "limit", 50, "page size")
	list.IntVar(&quarantineOffset, "offset", 0, "page offset")

	quarantineGetCmd.Flags().StringVar(&quarantineID, "id", "", "quarantine id")
	_ = quarantineGetCmd.MarkFlagRequired("id")

	quarantineResolveCmd.Flags().StringVar(&quarantineID, "id", "", "quarantine id")
	quarantineResolveCmd.Flags().StringVar(&quarantineJobID, "job", "", "job the record belongs to")
	_ = quarantineResolveCmd.MarkFlagRequired("id")
	_ = quarantineResolveCmd.MarkFlagRequired("job")

	quarantineDiscardCmd.Flags().StringVar(&quarantineID, "id", "", "quarantine id")
	quarantineDiscardCmd.Flags().StringVar(&quarantineReason, "reason", "", "why the record is discarded")
	_ = quarantineDiscardCmd.MarkFlagRequired("id")

	quarantineCmd.AddCommand(quarantineListCmd, quarantineGetCmd, quarantineResolveCmd, quarantineDiscardCmd)
}
