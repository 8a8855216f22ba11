package query

import (
	"context"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

type JobReader interface {
	GetJob(ctx context.Context, id string) (core.Job, error)
	ListJobs(ctx context.Context, status core.JobStatus, limit, offset int) ([]core.Job, int, error)
	ListFolders(ctx context.Context, jobID string) ([]core.Folder, error)
}

type DeliveryReader interface {
	GetDelivery(ctx context.Context, providerID, deliveryID string) (core.Delivery, error)
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) ([]core.Delivery, int, error)
}

type QuarantineReader interface {
	GetQuarantine(ctx context.Context, id string) (core.QuarantinedRecord, error)
	ListQuarantine(ctx context.Context, filter core.QuarantineFilter) ([]core.QuarantinedRecord, int, error)
}

type GetJobQuery struct {
	reader JobReader
}

func NewGetJobQuery(reader JobReader) *GetJobQuery {
	return &GetJobQuery{reader: reader}
}

func (q *GetJobQuery) Query(ctx context.Context, msg GetJobMessage) (core.Job, error) {
	if q == nil || q.reader == nil {
		return core.Job{}, queryDependencyError("query: job reader is required")
	}
	return q.reader.GetJob(ctx, msg.JobID)
}

type ListJobsQuery struct {
	reader JobReader
}

func NewListJobsQuery(reader JobReader) *ListJobsQuery {
	return &ListJobsQuery{reader: reader}
}

func (q *ListJobsQuery) Query(ctx context.Context, msg ListJobsMessage) (Page[core.Job], error) {
	if q == nil || q.reader == nil {
		return Page[core.Job]{}, queryDependencyError("query: job reader is required")
	}
	items, total, err := q.reader.ListJobs(ctx, msg.Status, msg.Limit, msg.Offset)
	if err != nil {
		return Page[core.Job]{}, err
	}
	return Page[core.Job]{Items: items, Total: total, Limit: msg.Limit, Offset: msg.Offset}, nil
}

type ListFoldersQuery struct {
	reader JobReader
}

func NewListFoldersQuery(reader JobReader) *ListFoldersQuery {
	return &ListFoldersQuery{reader: reader}
}

func (q *ListFoldersQuery) Query(ctx context.Context, msg ListFoldersMessage) ([]core.Folder, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: job reader is required")
	}
	return q.reader.ListFolders(ctx, msg.JobID)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.Delivery, error) {
	if q == nil || q.reader == nil {
		return core.Delivery{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.ProviderID, msg.DeliveryID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(
	ctx context.Context,
	msg ListDeliveriesMessage,
) (Page[core.Delivery], error) {
	if q == nil || q.reader == nil {
		return Page[core.Delivery]{}, queryDependencyError("query: delivery reader is required")
	}
	items, total, err := q.reader.ListDeliveries(ctx, msg.Filter)
	if err != nil {
		return Page[core.Delivery]{}, err
	}
	return Page[core.Delivery]{Items: items, Total: total, Limit: msg.Filter.Limit, Offset: msg.Filter.Offset}, nil
}

type GetQuarantineQuery struct {
	reader QuarantineReader
}

func NewGetQuarantineQuery(reader QuarantineReader) *GetQuarantineQuery {
	return &GetQuarantineQuery{reader: reader}
}

func (q *GetQuarantineQuery) Query(ctx context.Context, msg GetQuarantineMessage) (core.QuarantinedRecord, error) {
	if q == nil || q.reader == nil {
		return core.QuarantinedRecord{}, queryDependencyError("query: quarantine reader is required")
	}
	return q.reader.GetQuarantine(ctx, msg.QuarantineID)
}

type ListQuarantineQuery struct {
	reader QuarantineReader
}

func NewListQuarantineQuery(reader QuarantineReader) *ListQuarantineQuery {
	return &ListQuarantineQuery{reader: reader}
}

func (q *ListQuarantineQuery) Query(
	ctx context.Context,
	msg ListQuarantineMessage,
) (Page[core.QuarantinedRecord], error) {
	if q == nil || q.reader == nil {
		return Page[core.QuarantinedRecord]{}, queryDependencyError("query: quarantine reader is required")
	}
	items, total, err := q.reader.ListQuarantine(ctx, msg.Filter)
	if err != nil {
		return Page[core.QuarantinedRecord]{}, err
	}
	return Page[core.QuarantinedRecord]{Items: items, Total: total, Limit: msg.Filter.Limit, Offset: msg.Filter.Offset}, nil
}
