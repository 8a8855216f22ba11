package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is a bun model whose primary key is a string column named id.
// key returns nil for a nil receiver.
type keyedRecord interface {
	key() *string
}

func (r *jobRecord) key() *string {
	if r == nil {
		return nil
	}
	return &r.ID
}

func (r *deliveryRecord) key() *string {
	if r == nil {
		return nil
	}
	return &r.ID
}

func (r *quarantineRecord) key() *string {
	if r == nil {
		return nil
	}
	return &r.ID
}

func (r *outboxRecord) key() *string {
	if r == nil {
		return nil
	}
	return &r.ID
}

func handlersFor[T keyedRecord](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if id := record.key(); id != nil {
				return parseUUID(*id)
			}
			return uuid.Nil
		},
		SetID: func(record T, id uuid.UUID) {
			if field := record.key(); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			if id := record.key(); id != nil {
				return strings.TrimSpace(*id)
			}
			return ""
		},
	}
}

func jobHandlers() repository.ModelHandlers[*jobRecord] {
	return handlersFor(func() *jobRecord { return &jobRecord{} })
}

func deliveryHandlers() repository.ModelHandlers[*deliveryRecord] {
	return handlersFor(func() *deliveryRecord { return &deliveryRecord{} })
}

func quarantineHandlers() repository.ModelHandlers[*quarantineRecord] {
	return handlersFor(func() *quarantineRecord { return &quarantineRecord{} })
}

func outboxHandlers() repository.ModelHandlers[*outboxRecord] {
	return handlersFor(func() *outboxRecord { return &outboxRecord{} })
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
