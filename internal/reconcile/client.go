package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/normalize"
	"github.com/dentexa/import-cli/internal/parse"
	"github.com/dentexa/import-cli/internal/store"
)

// Client export column order, fixed by the legacy desktop product.
const (
	clientColID = iota
	clientColNumber
	clientColName
	clientColPhone
	clientColMobile
	clientColEmail
	clientColCity
	clientColAddress
	clientColSMSConsent
	clientColStatus
	clientColCount
)

var clientMerge = mergeSpec{
	fields:      []string{"phone", "mobile", "email", "city", "address"},
	bools:       []string{"sms_consent"},
	statusField: "status",
}

// clientPolicy reconciles client rows. Identity is the national ID when
// present, otherwise the declared client number.
type clientPolicy struct{}

// NewClientPolicy returns the reconciliation policy for client imports.
func NewClientPolicy() Policy {
	return clientPolicy{}
}

func (clientPolicy) Entity() store.Entity { return store.EntityClients }

func (clientPolicy) IsHeader(raw []string) bool {
	key := strings.TrimSpace(parse.Cell(raw, clientColID))
	return key == "" || strings.EqualFold(key, "id_number")
}

func (clientPolicy) Parse(raw []string) (*model.Normalized, error) {
	if len(raw) <= clientColName {
		return nil, eris.Errorf("row has %d columns, need at least %d", len(raw), clientColName+1)
	}
	return &model.Normalized{
		Identifier: normalize.Identifier(parse.Cell(raw, clientColID)),
		Number:     normalize.Number(parse.Cell(raw, clientColNumber)),
		Name:       strings.TrimSpace(parse.Cell(raw, clientColName)),
		Fields: map[string]string{
			"phone":   normalize.Phone(parse.Cell(raw, clientColPhone)),
			"mobile":  normalize.Phone(parse.Cell(raw, clientColMobile)),
			"email":   normalize.Email(parse.Cell(raw, clientColEmail)),
			"city":    strings.TrimSpace(parse.Cell(raw, clientColCity)),
			"address": strings.TrimSpace(parse.Cell(raw, clientColAddress)),
		},
		Bools: map[string]bool{
			"sms_consent": parse.Bool(parse.Cell(raw, clientColSMSConsent)),
		},
		Status: parse.StatusValue(parse.Cell(raw, clientColStatus)),
	}, nil
}

func (clientPolicy) Identity(n *model.Normalized) (model.MatchBy, string) {
	if n.Identifier != "" {
		return model.MatchByID, n.Identifier
	}
	if n.Number > 0 {
		return model.MatchByNumber, strconv.Itoa(n.Number)
	}
	return model.MatchByNone, ""
}

func (clientPolicy) Precheck(*model.Normalized) (model.Reason, string) {
	return model.ReasonNone, ""
}

func (clientPolicy) SnapshotKeys(rec store.Record) (string, int) {
	return normalize.Identifier(rec.Fields.Str("id_number")), rec.Fields.Int("client_number")
}

func (p clientPolicy) Conflict(found *store.Record, by model.MatchBy, n *model.Normalized) (model.Reason, string) {
	switch by {
	case model.MatchByID:
		_, storedNumber := p.SnapshotKeys(*found)
		if n.Number > 0 && n.Number != storedNumber {
			return model.ReasonIDNumberMismatch,
				fmt.Sprintf("id %s is stored with client number %d, row declares %d", n.Identifier, storedNumber, n.Number)
		}
	case model.MatchByNumber:
		// A number-only row may not silently merge into a record that
		// already carries a stronger identity. This does not verify the
		// identifiers would actually differ; the conservative heuristic
		// is kept as-is.
		if !normalize.IsEmpty(found.Fields.Str("id_number")) {
			return model.ReasonStrongerIdentity,
				fmt.Sprintf("client number %d belongs to a record with id %s", n.Number, found.Fields.Str("id_number"))
		}
	}
	return model.ReasonNone, ""
}

func (clientPolicy) Diff(found *store.Record, n *model.Normalized) []model.Change {
	return fillEmptyDiff(found, n, clientMerge)
}

func (clientPolicy) AssignNumber(a *Allocator, by model.MatchBy, n *model.Normalized) (int, model.Reason, string) {
	if by == model.MatchByNumber {
		// No identifier to autonomously re-key around: the declared
		// number must be used verbatim or the row is withheld.
		if a.Taken(n.Number) {
			return 0, model.ReasonNumberTaken,
				fmt.Sprintf("client number %d is already in use", n.Number)
		}
		a.Reserve(n.Number)
		return n.Number, model.ReasonNone, ""
	}

	assigned := a.Allocate(n.Number)
	if n.Number > 0 && assigned != n.Number {
		return assigned, model.ReasonNumberReassigned,
			fmt.Sprintf("client number %d was taken, reassigned to %d", n.Number, assigned)
	}
	return assigned, model.ReasonNone, ""
}

func (clientPolicy) CreateFields(n *model.Normalized, number int) store.Fields {
	return store.Fields{
		"id_number":     n.Identifier,
		"client_number": number,
		"name":          n.Name,
		"phone":         n.Fields["phone"],
		"mobile":        n.Fields["mobile"],
		"email":         n.Fields["email"],
		"city":          n.Fields["city"],
		"address":       n.Fields["address"],
		"sms_consent":   n.Bools["sms_consent"],
		"status":        string(n.Status),
	}
}

func (clientPolicy) UpdateFields(changes []model.Change) store.Fields {
	return clientMerge.updateFields(changes)
}
