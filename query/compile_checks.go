package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

var (
	_ gocmd.Querier[GetJobMessage, core.Job]                             = (*GetJobQuery)(nil)
	_ gocmd.Querier[ListJobsMessage, Page[core.Job]]                     = (*ListJobsQuery)(nil)
	_ gocmd.Querier[ListFoldersMessage, []core.Folder]                   = (*ListFoldersQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.Delivery]                   = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, Page[core.Delivery]]          = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetQuarantineMessage, core.QuarantinedRecord]        = (*GetQuarantineQuery)(nil)
	_ gocmd.Querier[ListQuarantineMessage, Page[core.QuarantinedRecord]] = (*ListQuarantineQuery)(nil)
	_ JobReader                                                          = (*core.Service)(nil)
	_ DeliveryReader                                                     = (*core.Service)(nil)
	_ QuarantineReader                                                   = (*core.Service)(nil)
)
