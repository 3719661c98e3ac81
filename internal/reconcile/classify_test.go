package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/store"
)

// clientRow builds a raw client row in export column order.
func clientRow(id, number, name, phone, mobile, email, city, address, sms, status string) []string {
	return []string{id, number, name, phone, mobile, email, city, address, sms, status}
}

func minimalClientRow(id, number, name string) []string {
	return clientRow(id, number, name, "", "", "", "", "", "", "")
}

func clientRecord(recID, idNumber string, number int, extra store.Fields) store.Record {
	fields := store.Fields{
		"id_number":     idNumber,
		"client_number": number,
		"name":          "Stored Client",
		"status":        "active",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return store.Record{ID: recID, Fields: fields}
}

func classifyClients(t *testing.T, records []store.Record, rows [][]string) *PreflightResult {
	t.Helper()
	pol := NewClientPolicy()
	snap := NewSnapshot(records, pol)
	return Classify(rows, snap, pol)
}

func TestClassify_NumberOnlyRowCreatesWithDeclaredNumber(t *testing.T) {
	// Scenario A: empty identifier, number 5, 5 absent from store.
	res := classifyClients(t, nil, [][]string{minimalClientRow("", "5", "Dana Levi")})

	require.Len(t, res.ToCreate, 1)
	row := res.ToCreate[0]
	assert.Equal(t, model.MatchByNumber, row.MatchBy)
	assert.Equal(t, model.ActionCreate, row.Action)
	assert.Equal(t, 5, row.AssignedNumber)
	assert.Equal(t, model.ReasonNone, row.Reason)
}

func TestClassify_DuplicateIdentifierInFile(t *testing.T) {
	// Scenario B: same identifier twice, unmatched in store.
	res := classifyClients(t, nil, [][]string{
		minimalClientRow("123456789", "", "Dana Levi"),
		minimalClientRow("123456789", "", "Dana Levi"),
	})

	require.Len(t, res.ToCreate, 1)
	require.Len(t, res.ToSkip, 1)
	assert.Positive(t, res.ToCreate[0].AssignedNumber)
	assert.Equal(t, model.ReasonDuplicateInFile, res.ToSkip[0].Reason)
	assert.Equal(t, 2, res.ToSkip[0].Index)
	assert.Len(t, res.Duplicates, 1)
}

func TestClassify_DuplicateOfConflictRowStillSkipped(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "123456789", 7, nil)}
	res := classifyClients(t, existing, [][]string{
		minimalClientRow("123456789", "9", "Dana Levi"), // conflict: number mismatch
		minimalClientRow("123456789", "9", "Dana Levi"),
	})

	require.Len(t, res.Conflicts, 1)
	require.Len(t, res.ToSkip, 1)
	assert.Equal(t, model.ReasonDuplicateInFile, res.ToSkip[0].Reason)
}

func TestClassify_FillEmptyCity(t *testing.T) {
	// Scenario C: stored record has empty city; row supplies one.
	existing := []store.Record{clientRecord("c7", "123456789", 7, store.Fields{"city": "-"})}
	res := classifyClients(t, existing, [][]string{
		minimalClientRow("123456789", "7", "Dana Levi"),
	})
	require.Len(t, res.ToUpdate, 1)
	row := res.ToUpdate[0]
	assert.Equal(t, "c7", row.ExistingID)
	assert.Empty(t, row.Changes)

	res = classifyClients(t, existing, [][]string{
		clientRow("123456789", "7", "Dana Levi", "", "", "", "Tel Aviv", "", "", "פעיל"),
	})
	require.Len(t, res.ToUpdate, 1)
	row = res.ToUpdate[0]
	require.Len(t, row.Changes, 1)
	assert.Equal(t, model.Change{Field: "city", Old: "-", New: "Tel Aviv"}, row.Changes[0])
}

func TestClassify_PopulatedFieldNeverOverwritten(t *testing.T) {
	// Scenario D: stored phone differs from imported phone; only the
	// genuinely empty field is proposed.
	existing := []store.Record{clientRecord("c7", "123456789", 7, store.Fields{
		"phone": "035551234",
		"email": "",
	})}
	res := classifyClients(t, existing, [][]string{
		clientRow("123456789", "7", "Dana Levi", "039999999", "", "dana@example.com", "", "", "", "פעיל"),
	})

	require.Len(t, res.ToUpdate, 1)
	changes := res.ToUpdate[0].Changes
	require.Len(t, changes, 1)
	assert.Equal(t, "email", changes[0].Field)
	assert.Equal(t, "dana@example.com", changes[0].New)
}

func TestClassify_ExactMatchYieldsEmptyChangeList(t *testing.T) {
	existing := []store.Record{clientRecord("c7", "123456789", 7, store.Fields{
		"phone": "0521234567", "city": "Haifa",
	})}
	res := classifyClients(t, existing, [][]string{
		clientRow("123456789", "7", "Dana Levi", "0521234567", "", "", "Haifa", "", "", "פעיל"),
	})

	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, model.ActionUpdate, res.ToUpdate[0].Action)
	assert.Empty(t, res.ToUpdate[0].Changes)
}

func TestClassify_AssignedNumbersDistinctAndDisjointFromStore(t *testing.T) {
	existing := []store.Record{
		clientRecord("c1", "111111111", 1, nil),
		clientRecord("c2", "222222222", 2, nil),
		clientRecord("c3", "333333333", 5, nil),
	}
	rows := [][]string{
		minimalClientRow("444444444", "", "A"),
		minimalClientRow("555555555", "2", "B"), // declared number taken in store
		minimalClientRow("666666666", "", "C"),
		minimalClientRow("", "9", "D"),
	}
	res := classifyClients(t, existing, rows)

	require.Len(t, res.ToCreate, 4)
	seen := map[int]bool{1: true, 2: true, 5: true}
	for _, row := range res.ToCreate {
		assert.False(t, seen[row.AssignedNumber], "number %d not unique", row.AssignedNumber)
		seen[row.AssignedNumber] = true
	}
}

func TestClassify_Idempotent(t *testing.T) {
	existing := []store.Record{
		clientRecord("c1", "111111111", 1, store.Fields{"city": ""}),
		clientRecord("c2", "", 2, nil),
	}
	rows := [][]string{
		minimalClientRow("111111111", "1", "A"),
		minimalClientRow("999999999", "", "B"),
		minimalClientRow("", "2", "C"),
		minimalClientRow("", "", "D"),
		minimalClientRow("999999999", "", "E"),
	}

	first := classifyClients(t, existing, rows)
	second := classifyClients(t, existing, rows)

	require.Equal(t, first.Total, second.Total)
	for i := range first.Rows {
		assert.Equal(t, first.Rows[i].Action, second.Rows[i].Action, "row %d action", i+1)
		assert.Equal(t, first.Rows[i].Reason, second.Rows[i].Reason, "row %d reason", i+1)
		assert.Equal(t, first.Rows[i].AssignedNumber, second.Rows[i].AssignedNumber, "row %d number", i+1)
	}
}

func TestClassify_MissingBothIdentifiers(t *testing.T) {
	res := classifyClients(t, nil, [][]string{minimalClientRow("", "", "Dana Levi")})
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, model.ReasonMissingIdentifiers, res.Invalid[0].Reason)
	assert.Equal(t, model.MatchByNone, res.Invalid[0].MatchBy)
}

func TestClassify_MissingName(t *testing.T) {
	res := classifyClients(t, nil, [][]string{minimalClientRow("123456789", "4", " ")})
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, model.ReasonMissingName, res.Invalid[0].Reason)
}

func TestClassify_IDExistsNumberMismatch(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "123456789", 7, nil)}
	res := classifyClients(t, existing, [][]string{minimalClientRow("123456789", "9", "Dana Levi")})

	require.Len(t, res.Conflicts, 1)
	row := res.Conflicts[0]
	assert.Equal(t, model.ReasonIDNumberMismatch, row.Reason)
	assert.Equal(t, "c1", row.ExistingID)
	assert.Equal(t, 7, row.ExistingNumber)
}

func TestClassify_NumberExistsWithStrongerIdentity(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "123456789", 7, nil)}
	res := classifyClients(t, existing, [][]string{minimalClientRow("", "7", "Dana Levi")})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, model.ReasonStrongerIdentity, res.Conflicts[0].Reason)
}

func TestClassify_ConflictRowCarriesFillEmptyChanges(t *testing.T) {
	// Conflicts matched to a record still carry their proposed changes,
	// so an operator override has something to commit.
	existing := []store.Record{clientRecord("c1", "123456789", 7, store.Fields{"city": ""})}
	res := classifyClients(t, existing, [][]string{
		clientRow("123456789", "9", "Dana Levi", "", "", "", "Tel Aviv", "", "", "פעיל"),
	})
	require.Len(t, res.Conflicts, 1)
	require.Len(t, res.Conflicts[0].Changes, 1)
	assert.Equal(t, model.Change{Field: "city", Old: "-", New: "Tel Aviv"}, res.Conflicts[0].Changes[0])

	existing = []store.Record{clientRecord("c2", "123456789", 7, store.Fields{"email": ""})}
	res = classifyClients(t, existing, [][]string{
		clientRow("", "7", "Dana Levi", "", "", "dana@example.com", "", "", "", "פעיל"),
	})
	require.Len(t, res.Conflicts, 1)
	require.Equal(t, model.ReasonStrongerIdentity, res.Conflicts[0].Reason)
	require.Len(t, res.Conflicts[0].Changes, 1)
	assert.Equal(t, "email", res.Conflicts[0].Changes[0].Field)
}

func TestClassify_NumberOnlyMergesIntoWeakRecord(t *testing.T) {
	// The stored record has no identifier, so a number-only row may merge.
	existing := []store.Record{clientRecord("c1", "", 7, nil)}
	res := classifyClients(t, existing, [][]string{minimalClientRow("", "7", "Dana Levi")})

	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "c1", res.ToUpdate[0].ExistingID)
}

func TestClassify_NumberTakenConflict(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "", 7, nil)}
	// Number 7 is taken by a record that doesn't match... make the row
	// number-only with a number held by a weak record but already consumed
	// in this pass.
	res := classifyClients(t, existing, [][]string{
		minimalClientRow("", "7", "First"),  // merges into c1
		minimalClientRow("", "9", "Second"), // free, creates
		minimalClientRow("", "9", "Third"),  // duplicate in file
	})
	require.Len(t, res.ToUpdate, 1)
	require.Len(t, res.ToCreate, 1)
	require.Len(t, res.ToSkip, 1)

	// A number-only row whose number was consumed by an earlier create in
	// the same pass conflicts rather than silently re-keying.
	res = classifyClients(t, existing, [][]string{
		minimalClientRow("555555555", "9", "Earlier"), // reserves 9
		minimalClientRow("", "9", "Later"),
	})
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, model.ReasonNumberTaken, res.Conflicts[0].Reason)
	assert.Zero(t, res.Conflicts[0].AssignedNumber)
}

func TestClassify_TakenDeclaredNumberReassignedForIDRows(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "111111111", 7, nil)}
	res := classifyClients(t, existing, [][]string{minimalClientRow("222222222", "7", "Dana Levi")})

	require.Len(t, res.ToCreate, 1)
	row := res.ToCreate[0]
	assert.Equal(t, model.ReasonNumberReassigned, row.Reason)
	assert.Equal(t, 8, row.AssignedNumber)
}

func TestClassify_FreeDeclaredNumberKeptForIDRows(t *testing.T) {
	res := classifyClients(t, nil, [][]string{minimalClientRow("222222222", "41", "Dana Levi")})
	require.Len(t, res.ToCreate, 1)
	assert.Equal(t, 41, res.ToCreate[0].AssignedNumber)
	assert.Equal(t, model.ReasonNone, res.ToCreate[0].Reason)
}

func TestClassify_HeaderAndBlankRowsDropped(t *testing.T) {
	rows := [][]string{
		{"id_number", "client_number", "name"},
		{"", "", ""},
		minimalClientRow("123456789", "", "Dana Levi"),
		{"", "  ", ""},
	}
	res := classifyClients(t, nil, rows)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Rows[0].Index)
}

func TestClassify_ShortRowIsFormatError(t *testing.T) {
	res := classifyClients(t, nil, [][]string{{"123456789", "5"}})
	require.Len(t, res.Invalid, 1)
	assert.Equal(t, model.ReasonRowFormat, res.Invalid[0].Reason)
	assert.NotEmpty(t, res.Invalid[0].Detail)
}

func TestClassify_BoolAndStatusUpgrades(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "123456789", 7, store.Fields{
		"sms_consent": false,
		"status":      "inactive",
	})}
	res := classifyClients(t, existing, [][]string{
		clientRow("123456789", "7", "Dana Levi", "", "", "", "", "", "כן", "פעיל"),
	})

	require.Len(t, res.ToUpdate, 1)
	changes := res.ToUpdate[0].Changes
	require.Len(t, changes, 2)
	assert.Equal(t, model.Change{Field: "sms_consent", Old: "false", New: "true"}, changes[0])
	assert.Equal(t, model.Change{Field: "status", Old: "inactive", New: "active"}, changes[1])
}

func TestClassify_DowngradesSuppressed(t *testing.T) {
	existing := []store.Record{clientRecord("c1", "123456789", 7, store.Fields{
		"sms_consent": true,
		"status":      "active",
	})}
	res := classifyClients(t, existing, [][]string{
		clientRow("123456789", "7", "Dana Levi", "", "", "", "", "", "לא", "לא פעיל"),
	})

	require.Len(t, res.ToUpdate, 1)
	assert.Empty(t, res.ToUpdate[0].Changes)
}
