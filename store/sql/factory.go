package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// RepositoryFactory builds every SQL store over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	deliveryLedger  *DeliveryLedger
	ingestStore     *IngestStore
	jobStore        *JobStore
	quarantineStore *QuarantineStore
	outboxStore     *OutboxStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return NewRepositoryFactoryFromDB(client.DB())
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	f := &RepositoryFactory{db: db}

	var err error
	if f.deliveryLedger, err = NewDeliveryLedger(db); err != nil {
		return nil, err
	}
	if f.ingestStore, err = NewIngestStore(db, f.deliveryLedger); err != nil {
		return nil, err
	}
	if f.jobStore, err = NewJobStore(db); err != nil {
		return nil, err
	}
	if f.quarantineStore, err = NewQuarantineStore(db); err != nil {
		return nil, err
	}
	if f.outboxStore, err = NewOutboxStore(db); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB                       { return f.db }
func (f *RepositoryFactory) DeliveryLedger() *DeliveryLedger   { return f.deliveryLedger }
func (f *RepositoryFactory) IngestStore() *IngestStore         { return f.ingestStore }
func (f *RepositoryFactory) JobStore() *JobStore               { return f.jobStore }
func (f *RepositoryFactory) QuarantineStore() *QuarantineStore { return f.quarantineStore }
func (f *RepositoryFactory) OutboxStore() *OutboxStore         { return f.outboxStore }

// CachedJobReader wraps the job store with the given cache service.
func (f *RepositoryFactory) CachedJobReader(cacheService repositorycache.CacheService) (*CachedJobReader, error) {
	return NewCachedJobReader(f.jobStore, cacheService)
}

// ServiceOptions wires every store into a core service.
func (f *RepositoryFactory) ServiceOptions() []core.Option {
	return []core.Option{
		core.WithIngestStore(f.ingestStore),
		core.WithJobStore(f.jobStore),
		core.WithDeliveryStore(f.deliveryLedger),
		core.WithQuarantineStore(f.quarantineStore),
	}
}
