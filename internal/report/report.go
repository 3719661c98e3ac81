// Package report projects a preflight result into a read-only summary
// for operator review and CSV export. A report is never mutated after
// generation.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/reconcile"
	"github.com/dentexa/import-cli/internal/store"
)

// Summary holds the per-category row counts.
type Summary struct {
	Total            int `json:"total"`
	ToCreate         int `json:"to_create"`
	ToUpdate         int `json:"to_update"`
	Skipped          int `json:"skipped"`
	DuplicatesInFile int `json:"duplicates_in_file"`
	Invalid          int `json:"invalid"`
	Conflicts        int `json:"conflicts"`
}

// RowDigest is the bounded field projection of one classified row.
type RowDigest struct {
	Index      int            `json:"row_index"`
	Identifier string         `json:"identifier,omitempty"`
	Number     int            `json:"number,omitempty"`
	Name       string         `json:"name,omitempty"`
	MatchBy    model.MatchBy  `json:"match_by"`
	Action     model.Action   `json:"action"`
	Reason     model.Reason   `json:"reason,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Changes    []model.Change `json:"changes,omitempty"`
}

// Report is the derived projection of one preflight pass.
type Report struct {
	Entity  store.Entity `json:"entity"`
	Summary Summary      `json:"summary"`
	Rows    []RowDigest  `json:"rows"`
}

// New builds a report from a preflight result. Rows are sorted by row
// index across all categories.
func New(pre *reconcile.PreflightResult) *Report {
	r := &Report{
		Entity: pre.Entity,
		Summary: Summary{
			Total:            pre.Total,
			ToCreate:         len(pre.ToCreate),
			ToUpdate:         len(pre.ToUpdate),
			Skipped:          len(pre.ToSkip),
			DuplicatesInFile: len(pre.Duplicates),
			Invalid:          len(pre.Invalid),
			Conflicts:        len(pre.Conflicts),
		},
		Rows: make([]RowDigest, 0, len(pre.Rows)),
	}
	for _, row := range pre.Rows {
		r.Rows = append(r.Rows, digest(row))
	}
	sort.Slice(r.Rows, func(i, j int) bool { return r.Rows[i].Index < r.Rows[j].Index })
	return r
}

func digest(row *model.Row) RowDigest {
	return RowDigest{
		Index:      row.Index,
		Identifier: row.Identifier(),
		Number:     row.Number(),
		Name:       row.Name(),
		MatchBy:    row.MatchBy,
		Action:     row.Action,
		Reason:     row.Reason,
		Detail:     row.Detail,
		Changes:    row.Changes,
	}
}

// Page returns a bounded window of row digests for display.
func (r *Report) Page(offset, limit int) []RowDigest {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.Rows) {
		return nil
	}
	end := len(r.Rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return r.Rows[offset:end]
}

// csvColumns is the fixed export column order.
var csvColumns = []string{"row_index", "identifier", "number", "name", "action", "reason", "detail"}

// WriteCSV exports the report: UTF-8 with byte-order mark, every cell
// quoted, one row per classified input row sorted by row index.
func (r *Report) WriteCSV(w io.Writer) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return eris.Wrap(err, "report: write bom")
	}
	if err := writeQuoted(w, csvColumns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		cells := []string{
			fmt.Sprintf("%d", row.Index),
			row.Identifier,
			numberCell(row.Number),
			row.Name,
			string(row.Action),
			string(row.Reason),
			detailCell(row),
		}
		if err := writeQuoted(w, cells); err != nil {
			return err
		}
	}
	return nil
}

func numberCell(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

// detailCell appends the field-level changes to the reason detail.
func detailCell(row RowDigest) string {
	parts := make([]string, 0, len(row.Changes)+1)
	if row.Detail != "" {
		parts = append(parts, row.Detail)
	}
	for _, ch := range row.Changes {
		parts = append(parts, fmt.Sprintf("%s: %s → %s", ch.Field, ch.Old, ch.New))
	}
	return strings.Join(parts, "; ")
}

func writeQuoted(w io.Writer, cells []string) error {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		quoted[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
	}
	if _, err := io.WriteString(w, strings.Join(quoted, ",")+"\r\n"); err != nil {
		return eris.Wrap(err, "report: write row")
	}
	return nil
}
