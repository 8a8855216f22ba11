package sqlstore

import "github.com/wina-futureobjects/track-futura-new-sub007/core"

var (
	_ core.IngestStore     = (*IngestStore)(nil)
	_ core.IngestTx        = (*ingestTx)(nil)
	_ core.DeliveryStore   = (*DeliveryLedger)(nil)
	_ core.DeliveryStore   = (*IngestStore)(nil)
	_ core.JobStore        = (*JobStore)(nil)
	_ core.QuarantineStore = (*QuarantineStore)(nil)
)
