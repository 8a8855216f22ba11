package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

type MutatingService interface {
	Ingest(ctx context.Context, delivery core.Delivery, records []core.ParsedRecord) (core.IngestOutcome, error)
	RegisterJob(ctx context.Context, in core.RegisterJobInput) (core.Job, error)
	UpdateJobStatus(ctx context.Context, id string, to core.JobStatus) (core.Job, error)
	ResolveQuarantine(ctx context.Context, id, jobID string) (core.ResultRecord, error)
	DiscardQuarantine(ctx context.Context, id, reason string) error
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

type OutboxDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (core.DispatchStats, error)
}

type IngestDeliveryCommand struct {
	service MutatingService
}

func NewIngestDeliveryCommand(service MutatingService) *IngestDeliveryCommand {
	return &IngestDeliveryCommand{service: service}
}

func (c *IngestDeliveryCommand) Execute(ctx context.Context, msg IngestDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	out, err := c.service.Ingest(ctx, msg.Delivery, msg.Records)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RegisterJobCommand struct {
	service MutatingService
}

func NewRegisterJobCommand(service MutatingService) *RegisterJobCommand {
	return &RegisterJobCommand{service: service}
}

func (c *RegisterJobCommand) Execute(ctx context.Context, msg RegisterJobMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	out, err := c.service.RegisterJob(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateJobStatusCommand struct {
	service MutatingService
}

func NewUpdateJobStatusCommand(service MutatingService) *UpdateJobStatusCommand {
	return &UpdateJobStatusCommand{service: service}
}

func (c *UpdateJobStatusCommand) Execute(ctx context.Context, msg UpdateJobStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	out, err := c.service.UpdateJobStatus(ctx, msg.JobID, msg.Status)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveQuarantineCommand struct {
	service MutatingService
}

func NewResolveQuarantineCommand(service MutatingService) *ResolveQuarantineCommand {
	return &ResolveQuarantineCommand{service: service}
}

func (c *ResolveQuarantineCommand) Execute(ctx context.Context, msg ResolveQuarantineMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: quarantine service is required")
	}
	out, err := c.service.ResolveQuarantine(ctx, msg.QuarantineID, msg.JobID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DiscardQuarantineCommand struct {
	service MutatingService
}

func NewDiscardQuarantineCommand(service MutatingService) *DiscardQuarantineCommand {
	return &DiscardQuarantineCommand{service: service}
}

func (c *DiscardQuarantineCommand) Execute(ctx context.Context, msg DiscardQuarantineMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: quarantine service is required")
	}
	return c.service.DiscardQuarantine(ctx, msg.QuarantineID, msg.Reason)
}

type PruneDeliveriesCommand struct {
	service MutatingService
}

func NewPruneDeliveriesCommand(service MutatingService) *PruneDeliveriesCommand {
	return &PruneDeliveriesCommand{service: service}
}

func (c *PruneDeliveriesCommand) Execute(ctx context.Context, msg PruneDeliveriesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	pruned, err := c.service.PruneDeliveries(ctx, msg.Before)
	if err != nil {
		return err
	}
	storeResult(ctx, PruneResult{Before: msg.Before, Pruned: pruned})
	return nil
}

type DispatchOutboxCommand struct {
	dispatcher OutboxDispatcher
}

func NewDispatchOutboxCommand(dispatcher OutboxDispatcher) *DispatchOutboxCommand {
	return &DispatchOutboxCommand{dispatcher: dispatcher}
}

func (c *DispatchOutboxCommand) Execute(ctx context.Context, msg DispatchOutboxMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: outbox dispatcher is required")
	}
	stats, err := c.dispatcher.DispatchPending(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
