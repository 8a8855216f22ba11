package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestDeliveryMessage]    = (*IngestDeliveryCommand)(nil)
	_ gocmd.Commander[RegisterJobMessage]       = (*RegisterJobCommand)(nil)
	_ gocmd.Commander[UpdateJobStatusMessage]   = (*UpdateJobStatusCommand)(nil)
	_ gocmd.Commander[ResolveQuarantineMessage] = (*ResolveQuarantineCommand)(nil)
	_ gocmd.Commander[DiscardQuarantineMessage] = (*DiscardQuarantineCommand)(nil)
	_ gocmd.Commander[PruneDeliveriesMessage]   = (*PruneDeliveriesCommand)(nil)
	_ gocmd.Commander[DispatchOutboxMessage]    = (*DispatchOutboxCommand)(nil)
)
