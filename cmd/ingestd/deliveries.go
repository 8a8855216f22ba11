package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
	ingestcommand "github.com/wina-futureobjects/track-futura-new-sub007/command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	ingestquery "github.com/wina-futureobjects/track-futura-new-sub007/query"
)

var (
	deliveryProvider string
	deliveryID       string
	deliveryStatus   string
	deliverySince    time.Duration
	deliveryLimit    int
	deliveryOffset   int
	pruneBefore      string
	pruneOlderThan   time.Duration
)

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Inspect and prune the delivery ledger",
}

var deliveriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter := core.DeliveryFilter{
			ProviderID: deliveryProvider,
			Status:     core.DeliveryStatus(deliveryStatus),
			Limit:      deliveryLimit,
			Offset:     deliveryOffset,
		}
		if deliverySince > 0 {
			filter.Since = time.Now().UTC().Add(-deliverySince)
		}
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			page, err := query(ctx, rt.Facade.Queries().ListDeliveries, ingestquery.ListDeliveriesMessage{Filter: filter})
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		})
	},
}

var deliveriesGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show one ledger entry by provider and delivery id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			delivery, err := query(ctx, rt.Facade.Queries().GetDelivery, ingestquery.GetDeliveryMessage{
				ProviderID: deliveryProvider,
				DeliveryID: deliveryID,
			})
			if err != nil {
				return err
			}
			delivery.Payload = nil
			return printJSON(cmd, delivery)
		})
	},
}

var deliveriesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove processed ledger entries received before a cutoff",
	RunE: func(cmd *cobra.Command, _ []string) error {
		before, err := pruneCutoff(time.Now().UTC())
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *ingest.Runtime) error {
			result, err := execute[ingestcommand.PruneResult](ctx, rt.Facade.Commands().PruneDeliveries, ingestcommand.PruneDeliveriesMessage{Before: before})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

// pruneCutoff resolves --before (RFC 3339) or --older-than into a cutoff.
func pruneCutoff(now time.Time) (time.Time, error) {
	switch {
	case pruneBefore != "" && pruneOlderThan > 0:
		return time.Time{}, fmt.Errorf("use either --before or --older-than")
	case pruneBefore != "":
		before, err := time.Parse(time.RFC3339, pruneBefore)
		if err != nil {
			return time.Time{}, fmt.Errorf("--before must be RFC 3339: %w", err)
		}
		return before.UTC(), nil
	case pruneOlderThan > 0:
		return now.Add(-pruneOlderThan), nil
	default:
		return time.Time{}, fmt.Errorf("--before or --older-than is required")
	}
}

func init() {
	list := deliveriesListCmd.Flags()
	list.StringVar(&deliveryProvider, "provider", "", "filter by provider id")
	list.StringVar(&deliveryStatus, "status", "", "processing, processed or failed")
	list.DurationVar(&deliverySince, "since", 0, "only entries received within this window")
	list.IntVar(&deliveryLimit, "limit", 50, "page size")
	list.IntVar(&deliveryOffset, "offset", 0, "page offset")

	deliveriesGetCmd.Flags().StringVar(&deliveryProvider, "provider", "brightdata", "provider id")
	deliveriesGetCmd.Flags().StringVar(&deliveryID, "id", "", "provider delivery id")
	_ = deliveriesGetCmd.MarkFlagRequired("id")

	deliveriesPruneCmd.Flags().StringVar(&pruneBefore, "before", "", "cutoff as an RFC 3339 timestamp")
	deliveriesPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "cutoff relative to now, e.g. 720h")

	deliveriesCmd.AddCommand(deliveriesListCmd, deliveriesGetCmd, deliveriesPruneCmd)
}
