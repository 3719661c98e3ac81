package reconcile

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/normalize"
	"github.com/dentexa/import-cli/internal/parse"
	"github.com/dentexa/import-cli/internal/store"
)

// Patient export column order.
const (
	patientColOwner = iota
	patientColName
	patientColPhone
	patientColEmail
	patientColNotes
	patientColStatus
	patientColCount
)

var patientMerge = mergeSpec{
	fields:      []string{"phone", "email", "notes"},
	statusField: "status",
}

// patientPolicy reconciles patient rows. Identity is the compound of the
// owning client's number and the lowercased patient name; patient numbers
// are always freshly allocated.
type patientPolicy struct {
	owners map[int]struct{}
	lower  cases.Caser
}

// NewPatientPolicy returns the reconciliation policy for patient imports.
// owners is the set of client numbers present in the clients snapshot;
// a patient row whose owner is absent is invalid.
func NewPatientPolicy(clients []store.Record) Policy {
	owners := make(map[int]struct{}, len(clients))
	for _, rec := range clients {
		if n := rec.Fields.Int("client_number"); n > 0 {
			owners[n] = struct{}{}
		}
	}
	return &patientPolicy{owners: owners, lower: cases.Lower(language.Und)}
}

func (*patientPolicy) Entity() store.Entity { return store.EntityPatients }

func (*patientPolicy) IsHeader(raw []string) bool {
	key := strings.TrimSpace(parse.Cell(raw, patientColOwner))
	return key == "" || strings.EqualFold(key, "client_number")
}

func (*patientPolicy) Parse(raw []string) (*model.Normalized, error) {
	if len(raw) <= patientColName {
		return nil, eris.Errorf("row has %d columns, need at least %d", len(raw), patientColName+1)
	}
	return &model.Normalized{
		OwnerNumber: normalize.Number(parse.Cell(raw, patientColOwner)),
		Name:        strings.TrimSpace(parse.Cell(raw, patientColName)),
		Fields: map[string]string{
			"phone": normalize.Phone(parse.Cell(raw, patientColPhone)),
			"email": normalize.Email(parse.Cell(raw, patientColEmail)),
			"notes": strings.TrimSpace(parse.Cell(raw, patientColNotes)),
		},
		Status: parse.StatusValue(parse.Cell(raw, patientColStatus)),
	}, nil
}

func (p *patientPolicy) Identity(n *model.Normalized) (model.MatchBy, string) {
	if n.OwnerNumber == 0 {
		return model.MatchByNone, ""
	}
	return model.MatchByID, p.compoundKey(n.OwnerNumber, n.Name)
}

func (p *patientPolicy) Precheck(n *model.Normalized) (model.Reason, string) {
	if _, ok := p.owners[n.OwnerNumber]; !ok {
		return model.ReasonOwnerNotFound,
			fmt.Sprintf("client number %d does not exist", n.OwnerNumber)
	}
	return model.ReasonNone, ""
}

func (p *patientPolicy) SnapshotKeys(rec store.Record) (string, int) {
	owner := rec.Fields.Int("client_number")
	name := strings.TrimSpace(rec.Fields.Str("name"))
	if owner == 0 || name == "" {
		return "", rec.Fields.Int("patient_number")
	}
	return p.compoundKey(owner, name), rec.Fields.Int("patient_number")
}

func (*patientPolicy) Conflict(*store.Record, model.MatchBy, *model.Normalized) (model.Reason, string) {
	return model.ReasonNone, ""
}

func (*patientPolicy) Diff(found *store.Record, n *model.Normalized) []model.Change {
	return fillEmptyDiff(found, n, patientMerge)
}

func (*patientPolicy) AssignNumber(a *Allocator, _ model.MatchBy, _ *model.Normalized) (int, model.Reason, string) {
	// Patients never declare their own number; allocation is always fresh.
	return a.Allocate(0), model.ReasonNone, ""
}

func (*patientPolicy) CreateFields(n *model.Normalized, number int) store.Fields {
	return store.Fields{
		"client_number":  n.OwnerNumber,
		"patient_number": number,
		"name":           n.Name,
		"phone":          n.Fields["phone"],
		"email":          n.Fields["email"],
		"notes":          n.Fields["notes"],
		"status":         string(n.Status),
	}
}

func (*patientPolicy) UpdateFields(changes []model.Change) store.Fields {
	return patientMerge.updateFields(changes)
}

func (p *patientPolicy) compoundKey(owner int, name string) string {
	return fmt.Sprintf("%d|%s", owner, p.lower.String(strings.TrimSpace(name)))
}
