package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Memory is an in-memory RecordStore used by tests and as a dry-run
// target. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	records map[Entity][]Record

	// FailCreate and FailUpdate, when set, are consulted before every
	// write so tests can inject per-record failures.
	FailCreate func(entity Entity, fields Fields) error
	FailUpdate func(entity Entity, id string) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[Entity][]Record)}
}

// Seed inserts records directly, bypassing failure hooks. Records without
// an ID get one.
func (m *Memory) Seed(entity Entity, recs ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		m.records[entity] = append(m.records[entity], r)
	}
}

func (m *Memory) ListAll(_ context.Context, entity Entity) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records[entity]))
	copy(out, m.records[entity])
	return out, nil
}

func (m *Memory) Create(_ context.Context, entity Entity, fields Fields) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		if err := m.FailCreate(entity, fields); err != nil {
			return nil, err
		}
	}
	rec := Record{ID: uuid.NewString(), Fields: cloneFields(fields)}
	m.records[entity] = append(m.records[entity], rec)
	return &rec, nil
}

func (m *Memory) Update(_ context.Context, entity Entity, id string, fields Fields) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpdate != nil {
		if err := m.FailUpdate(entity, id); err != nil {
			return nil, err
		}
	}
	recs := m.records[entity]
	for i := range recs {
		if recs[i].ID == id {
			if recs[i].Fields == nil {
				recs[i].Fields = make(Fields)
			}
			for k, v := range fields {
				recs[i].Fields[k] = v
			}
			rec := recs[i]
			return &rec, nil
		}
	}
	return nil, eris.New(fmt.Sprintf("store: %s record %s not found", entity, id))
}

// Get returns a record by ID, for test assertions.
func (m *Memory) Get(entity Entity, id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records[entity] {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Count returns the number of records of an entity.
func (m *Memory) Count(entity Entity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[entity])
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
