package reconcile

import (
	"fmt"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/parse"
	"github.com/dentexa/import-cli/internal/store"
)

// PreflightResult aggregates one classification pass. It is built once,
// read by the report generator and override selector, consumed by the
// commit engine, and discarded; a re-run starts from a fresh snapshot.
type PreflightResult struct {
	Entity store.Entity
	Total  int

	// Rows holds every classified row in file order.
	Rows []*model.Row

	// Disjoint action lists, plus the duplicates-in-file subset of ToSkip.
	ToCreate   []*model.Row
	ToUpdate   []*model.Row
	ToSkip     []*model.Row
	Invalid    []*model.Row
	Conflicts  []*model.Row
	Duplicates []*model.Row

	// Alloc carries the allocator state of this pass.
	Alloc *Allocator
}

func (p *PreflightResult) add(row *model.Row) {
	p.Total++
	p.Rows = append(p.Rows, row)
	switch row.Action {
	case model.ActionCreate:
		p.ToCreate = append(p.ToCreate, row)
	case model.ActionUpdate:
		p.ToUpdate = append(p.ToUpdate, row)
	case model.ActionSkip:
		p.ToSkip = append(p.ToSkip, row)
		if row.Reason == model.ReasonDuplicateInFile {
			p.Duplicates = append(p.Duplicates, row)
		}
	case model.ActionInvalid:
		p.Invalid = append(p.Invalid, row)
	case model.ActionConflict:
		p.Conflicts = append(p.Conflicts, row)
	}
}

// Classify runs the reconciliation pass: every non-header, non-blank row
// is parsed, normalized, and resolved against the snapshot, in file
// order. Row indices are 1-based over the data rows.
func Classify(rows [][]string, snap *Snapshot, pol Policy) *PreflightResult {
	res := &PreflightResult{
		Entity: pol.Entity(),
		Alloc:  NewAllocator(snap.Numbers()),
	}
	seen := make(map[string]struct{})

	index := 0
	for i, raw := range rows {
		if i == 0 && pol.IsHeader(raw) {
			continue
		}
		if parse.IsBlank(raw) {
			continue
		}
		index++
		res.add(classifyRow(index, raw, snap, pol, seen, res.Alloc))
	}
	return res
}

func classifyRow(index int, raw []string, snap *Snapshot, pol Policy, seen map[string]struct{}, alloc *Allocator) (row *model.Row) {
	row = &model.Row{Index: index, Raw: raw, MatchBy: model.MatchByNone}

	// A malformed row must never abort the batch; anything unexpected
	// downgrades to a per-row format error.
	defer func() {
		if r := recover(); r != nil {
			row.Action = model.ActionInvalid
			row.Reason = model.ReasonRowFormat
			row.Detail = fmt.Sprintf("unexpected parse failure: %v", r)
		}
	}()

	n, err := pol.Parse(raw)
	if err != nil {
		row.Action = model.ActionInvalid
		row.Reason = model.ReasonRowFormat
		row.Detail = err.Error()
		return row
	}
	row.Norm = n

	by, key := pol.Identity(n)
	row.MatchBy = by
	if by == model.MatchByNone {
		row.Action = model.ActionInvalid
		row.Reason = model.ReasonMissingIdentifiers
		row.Detail = "row carries neither an identifier nor a number"
		return row
	}

	if n.Name == "" {
		row.Action = model.ActionInvalid
		row.Reason = model.ReasonMissingName
		row.Detail = "mandatory name field is empty"
		return row
	}

	seenKey := string(by) + "|" + key
	if _, dup := seen[seenKey]; dup {
		row.Action = model.ActionSkip
		row.Reason = model.ReasonDuplicateInFile
		row.Detail = fmt.Sprintf("key %s appeared earlier in the file", key)
		return row
	}
	seen[seenKey] = struct{}{}

	if reason, detail := pol.Precheck(n); reason != model.ReasonNone {
		row.Action = model.ActionInvalid
		row.Reason = reason
		row.Detail = detail
		return row
	}

	var found *store.Record
	if by == model.MatchByNumber {
		found = snap.FindNumber(n.Number)
	} else {
		found = snap.FindIdentity(key)
	}

	if found != nil {
		row.ExistingID = found.ID
		_, row.ExistingNumber = pol.SnapshotKeys(*found)
		// Conflict rows keep their change list too: an overridden conflict
		// commits as a fill-empty update against the matched record.
		row.Changes = pol.Diff(found, n)

		if reason, detail := pol.Conflict(found, by, n); reason != model.ReasonNone {
			row.Action = model.ActionConflict
			row.Reason = reason
			row.Detail = detail
			return row
		}

		// An empty change list is still a processed update, not a skip.
		row.Action = model.ActionUpdate
		return row
	}

	number, reason, detail := pol.AssignNumber(alloc, by, n)
	if reason == model.ReasonNumberTaken {
		row.Action = model.ActionConflict
		row.Reason = reason
		row.Detail = detail
		return row
	}

	row.Action = model.ActionCreate
	row.AssignedNumber = number
	row.Reason = reason
	row.Detail = detail
	return row
}
