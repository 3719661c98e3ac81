package reconcile

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dentexa/import-cli/internal/store"
)

// Load fetches the snapshot for an entity and builds its policy. Patient
// reconciliation also needs the client list for owner prechecks.
func Load(ctx context.Context, st store.RecordStore, entity store.Entity) (Policy, *Snapshot, error) {
	switch entity {
	case store.EntityClients:
		pol := NewClientPolicy()
		recs, err := st.ListAll(ctx, store.EntityClients)
		if err != nil {
			return nil, nil, eris.Wrap(err, "reconcile: list clients")
		}
		return pol, NewSnapshot(recs, pol), nil

	case store.EntityPatients:
		clients, err := st.ListAll(ctx, store.EntityClients)
		if err != nil {
			return nil, nil, eris.Wrap(err, "reconcile: list clients")
		}
		pol := NewPatientPolicy(clients)
		recs, err := st.ListAll(ctx, store.EntityPatients)
		if err != nil {
			return nil, nil, eris.Wrap(err, "reconcile: list patients")
		}
		return pol, NewSnapshot(recs, pol), nil
	}
	return nil, nil, eris.Errorf("reconcile: unknown entity %q", entity)
}
