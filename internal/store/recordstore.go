package store

import "context"

// RecordStore is the persistence contract consumed by the reconciliation
// and commit engines.
type RecordStore interface {
	// ListAll fetches every record of an entity. The result is the
	// one-time snapshot a reconciliation pass runs against.
	ListAll(ctx context.Context, entity Entity) ([]Record, error)

	// Create inserts a new record and returns it with its assigned ID.
	Create(ctx context.Context, entity Entity, fields Fields) (*Record, error)

	// Update patches an existing record by ID.
	Update(ctx context.Context, entity Entity, id string, fields Fields) (*Record, error)
}
