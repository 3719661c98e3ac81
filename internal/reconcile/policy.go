// Package reconcile classifies import rows against a one-time store
// snapshot before any write occurs. Classification is single-threaded and
// file-order dependent: duplicate detection and number allocation both
// require strict ordering.
package reconcile

import (
	"strings"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/normalize"
	"github.com/dentexa/import-cli/internal/store"
)

// Policy is the per-entity strategy consulted by the generic classifier.
// Clients and patients share the classification control flow but differ
// in identity-key shape, merge fields, and number-allocation rules.
type Policy interface {
	Entity() store.Entity

	// IsHeader reports whether the first file row is a header to drop:
	// its key cell is blank or carries the literal column title.
	IsHeader(raw []string) bool

	// Parse normalizes the fixed-position cells of one row.
	Parse(raw []string) (*model.Normalized, error)

	// Identity derives the match key. MatchByNone means the row carries
	// no usable identity.
	Identity(n *model.Normalized) (model.MatchBy, string)

	// Precheck runs entity-specific validation that needs the snapshot
	// context (patient owner existence). Empty reason means pass.
	Precheck(n *model.Normalized) (model.Reason, string)

	// SnapshotKeys extracts the identity key and number of a stored
	// record for snapshot indexing.
	SnapshotKeys(rec store.Record) (identity string, number int)

	// Conflict decides whether a matched row must be withheld. Empty
	// reason means the match is safe to merge.
	Conflict(found *store.Record, by model.MatchBy, n *model.Normalized) (model.Reason, string)

	// Diff proposes fill-empty-only changes against the matched record.
	Diff(found *store.Record, n *model.Normalized) []model.Change

	// AssignNumber settles the number for an unmatched (create) row.
	// ReasonNumberTaken marks an unresolvable collision; the row becomes
	// a conflict instead of a create.
	AssignNumber(a *Allocator, by model.MatchBy, n *model.Normalized) (int, model.Reason, string)

	// CreateFields builds the store payload for a create.
	CreateFields(n *model.Normalized, number int) store.Fields

	// UpdateFields builds the store payload for an approved change list.
	UpdateFields(changes []model.Change) store.Fields
}

// mergeSpec names the mergeable fields of an entity in display order.
type mergeSpec struct {
	fields      []string
	bools       []string
	statusField string
}

// fillEmptyDiff implements the merge policy shared by both entities:
// propose a value only when the stored one is empty and the imported one
// is not. Populated fields are never overwritten and a genuine value
// mismatch is not an error. Booleans upgrade false to true only; status
// upgrades inactive to active only.
func fillEmptyDiff(found *store.Record, n *model.Normalized, spec mergeSpec) []model.Change {
	var changes []model.Change
	for _, f := range spec.fields {
		newVal := n.Fields[f]
		oldVal := found.Fields.Str(f)
		if normalize.IsEmpty(oldVal) && !normalize.IsEmpty(newVal) {
			if strings.TrimSpace(oldVal) == "" {
				oldVal = "-"
			}
			changes = append(changes, model.Change{Field: f, Old: oldVal, New: newVal})
		}
	}
	for _, b := range spec.bools {
		if n.Bools[b] && !found.Fields.Bool(b) {
			changes = append(changes, model.Change{Field: b, Old: "false", New: "true"})
		}
	}
	if spec.statusField != "" &&
		n.Status == model.StatusActive &&
		found.Fields.Str(spec.statusField) != string(model.StatusActive) {
		changes = append(changes, model.Change{
			Field: spec.statusField,
			Old:   string(model.StatusInactive),
			New:   string(model.StatusActive),
		})
	}
	return changes
}

// updateFields converts an approved change list into a store payload.
func (spec mergeSpec) updateFields(changes []model.Change) store.Fields {
	boolSet := make(map[string]bool, len(spec.bools))
	for _, b := range spec.bools {
		boolSet[b] = true
	}
	fields := make(store.Fields, len(changes))
	for _, ch := range changes {
		switch {
		case boolSet[ch.Field]:
			fields[ch.Field] = ch.New == "true"
		default:
			fields[ch.Field] = ch.New
		}
	}
	return fields
}
