package ingest

import (
	"fmt"

	"github.com/wina-futureobjects/track-futura-new-sub007/adapters/gocommand"
	ingestcommand "github.com/wina-futureobjects/track-futura-new-sub007/command"
	ingestquery "github.com/wina-futureobjects/track-futura-new-sub007/query"
)

type CommandQueryService interface {
	ingestcommand.MutatingService
	ingestquery.JobReader
	ingestquery.DeliveryReader
	ingestquery.QuarantineReader
}

type Commands struct {
	IngestDelivery    *ingestcommand.IngestDeliveryCommand
	RegisterJob       *ingestcommand.RegisterJobCommand
	UpdateJobStatus   *ingestcommand.UpdateJobStatusCommand
	ResolveQuarantine *ingestcommand.ResolveQuarantineCommand
	DiscardQuarantine *ingestcommand.DiscardQuarantineCommand
	PruneDeliveries   *ingestcommand.PruneDeliveriesCommand
	// DispatchOutbox is nil unless an outbox dispatcher was supplied.
	DispatchOutbox *ingestcommand.DispatchOutboxCommand
}

type Queries struct {
	GetJob         *ingestquery.GetJobQuery
	ListJobs       *ingestquery.ListJobsQuery
	ListFolders    *ingestquery.ListFoldersQuery
	GetDelivery    *ingestquery.GetDeliveryQuery
	ListDeliveries *ingestquery.ListDeliveriesQuery
	GetQuarantine  *ingestquery.GetQuarantineQuery
	ListQuarantine *ingestquery.ListQuarantineQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	outbox    ingestcommand.OutboxDispatcher
	jobReader ingestquery.JobReader
}

func WithOutboxDispatcher(dispatcher ingestcommand.OutboxDispatcher) FacadeOption {
	return func(options *facadeOptions) {
		options.outbox = dispatcher
	}
}

// WithQueryJobReader serves job queries from reader instead of the service.
func WithQueryJobReader(reader ingestquery.JobReader) FacadeOption {
	return func(options *facadeOptions) {
		options.jobReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("ingest: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	jobs := cfg.jobReader
	if jobs == nil {
		jobs = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IngestDelivery:    ingestcommand.NewIngestDeliveryCommand(service),
		RegisterJob:       ingestcommand.NewRegisterJobCommand(service),
		UpdateJobStatus:   ingestcommand.NewUpdateJobStatusCommand(service),
		ResolveQuarantine: ingestcommand.NewResolveQuarantineCommand(service),
		DiscardQuarantine: ingestcommand.NewDiscardQuarantineCommand(service),
		PruneDeliveries:   ingestcommand.NewPruneDeliveriesCommand(service),
	}
	if cfg.outbox != nil {
		facade.commands.DispatchOutbox = ingestcommand.NewDispatchOutboxCommand(cfg.outbox)
	}
	facade.queries = Queries{
		GetJob:         ingestquery.NewGetJobQuery(jobs),
		ListJobs:       ingestquery.NewListJobsQuery(jobs),
		ListFolders:    ingestquery.NewListFoldersQuery(jobs),
		GetDelivery:    ingestquery.NewGetDeliveryQuery(service),
		ListDeliveries: ingestquery.NewListDeliveriesQuery(service),
		GetQuarantine:  ingestquery.NewGetQuarantineQuery(service),
		ListQuarantine: ingestquery.NewListQuarantineQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Register subscribes every command and query on the go-command dispatcher
// and adds the commands to the adapter's registry. Subscriptions are released
// with adapter.Close.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) error {
	if f == nil {
		return fmt.Errorf("ingest: facade is nil")
	}
	if adapter == nil {
		return fmt.Errorf("ingest: command registry adapter is required")
	}
	c := f.commands
	q := f.queries

	steps := []func() error{
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.IngestDelivery); return err },
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.RegisterJob); return err },
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.UpdateJobStatus); return err },
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.ResolveQuarantine); return err },
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.DiscardQuarantine); return err },
		func() error { _, err := gocommand.RegisterAndSubscribe(adapter, c.PruneDeliveries); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.GetJob); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.ListJobs); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.ListFolders); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.GetDelivery); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.ListDeliveries); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.GetQuarantine); return err },
		func() error { _, err := gocommand.SubscribeQuery(adapter, q.ListQuarantine); return err },
	}
	if c.DispatchOutbox != nil {
		steps = append(steps, func() error {
			_, err := gocommand.RegisterAndSubscribe(adapter, c.DispatchOutbox)
			return err
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			adapter.Close()
			return fmt.Errorf("ingest: register handlers: %w", err)
		}
	}
	return nil
}
