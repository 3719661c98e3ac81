package reconcile

import (
	"github.com/dentexa/import-cli/internal/store"
)

// Snapshot indexes one ListAll result for identity and number lookups.
// It is taken once per analysis run; the engine is not safe against
// another writer mutating the store between snapshot and commit.
type Snapshot struct {
	byIdentity map[string]*store.Record
	byNumber   map[int]*store.Record
	numbers    []int
}

// NewSnapshot indexes records using the policy's key extraction. On
// duplicate keys in the store the first record wins; later ones are
// unreachable, matching the product's historical behavior.
func NewSnapshot(records []store.Record, pol Policy) *Snapshot {
	s := &Snapshot{
		byIdentity: make(map[string]*store.Record, len(records)),
		byNumber:   make(map[int]*store.Record, len(records)),
	}
	for i := range records {
		rec := &records[i]
		identity, number := pol.SnapshotKeys(*rec)
		if identity != "" {
			if _, ok := s.byIdentity[identity]; !ok {
				s.byIdentity[identity] = rec
			}
		}
		if number > 0 {
			if _, ok := s.byNumber[number]; !ok {
				s.byNumber[number] = rec
			}
			s.numbers = append(s.numbers, number)
		}
	}
	return s
}

// FindIdentity looks up a record by its identity key.
func (s *Snapshot) FindIdentity(key string) *store.Record {
	return s.byIdentity[key]
}

// FindNumber looks up a record by its number.
func (s *Snapshot) FindNumber(n int) *store.Record {
	return s.byNumber[n]
}

// Numbers returns every number present in the snapshot, used to seed the
// allocator's committed set.
func (s *Snapshot) Numbers() []int {
	return s.numbers
}
