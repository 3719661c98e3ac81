// Package commit executes the approved create/update operations of a
// preflight pass against the records store.
package commit

import (
	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/reconcile"
	"github.com/dentexa/import-cli/internal/store"
)

// Op is one planned write operation.
type Op struct {
	Row      *model.Row
	Update   bool
	RecordID string // update target
	Fields   store.Fields
}

// Plan turns a preflight result and an operator override selection into
// the two commit phases. Overridden rows carrying an existing-record
// reference become updates; the rest become creates using their
// already-computed normalized fields and assigned number. An overridden
// row that never reached number assignment draws a fresh number from the
// pass allocator. Rows not selected stay excluded.
func Plan(pre *reconcile.PreflightResult, sel model.OverrideSelection, pol reconcile.Policy) (updates, creates []Op) {
	for _, row := range pre.ToUpdate {
		updates = append(updates, updateOp(row, pol))
	}
	for _, row := range pre.ToCreate {
		creates = append(creates, createOp(row, pol, pre.Alloc))
	}

	for _, row := range selectRows(pre.Invalid, sel.Invalid) {
		updates, creates = route(row, pol, pre.Alloc, updates, creates)
	}
	for _, row := range selectRows(pre.Conflicts, sel.Conflicts) {
		updates, creates = route(row, pol, pre.Alloc, updates, creates)
	}
	for _, row := range selectRows(pre.ToSkip, sel.Skipped) {
		updates, creates = route(row, pol, pre.Alloc, updates, creates)
	}
	return updates, creates
}

func route(row *model.Row, pol reconcile.Policy, alloc *reconcile.Allocator, updates, creates []Op) ([]Op, []Op) {
	if row.ExistingID != "" {
		return append(updates, updateOp(row, pol)), creates
	}
	return updates, append(creates, createOp(row, pol, alloc))
}

func updateOp(row *model.Row, pol reconcile.Policy) Op {
	return Op{
		Row:      row,
		Update:   true,
		RecordID: row.ExistingID,
		Fields:   pol.UpdateFields(row.Changes),
	}
}

func createOp(row *model.Row, pol reconcile.Policy, alloc *reconcile.Allocator) Op {
	number := row.AssignedNumber
	if number == 0 && row.Norm != nil {
		number = row.Norm.Number
	}
	if number == 0 {
		// Overridden rows bypassed the allocation gate; without a fresh
		// number every such create would collide on zero.
		number = alloc.Allocate(0)
	}
	return Op{
		Row:    row,
		Fields: pol.CreateFields(row.Norm, number),
	}
}

func selectRows(rows []*model.Row, indices []int) []*model.Row {
	if len(indices) == 0 {
		return nil
	}
	want := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		want[i] = struct{}{}
	}
	var out []*model.Row
	for _, row := range rows {
		if _, ok := want[row.Index]; ok && row.Norm != nil {
			out = append(out, row)
		}
	}
	return out
}
