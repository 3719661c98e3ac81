package model

// MatchBy identifies which key matched an input row to a stored record.
type MatchBy string

const (
	MatchByID     MatchBy = "id_number"
	MatchByNumber MatchBy = "number"
	MatchByNone   MatchBy = "none"
)

// Action is the classification outcome for a single input row.
type Action string

const (
	ActionCreate   Action = "to_create"
	ActionUpdate   Action = "to_update"
	ActionSkip     Action = "skipped"
	ActionInvalid  Action = "invalid"
	ActionConflict Action = "conflict"
)

// Reason explains why a row received its action.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingIdentifiers Reason = "missing_both_identifiers"
	ReasonMissingName        Reason = "missing_name"
	ReasonDuplicateInFile    Reason = "duplicate_in_file"
	ReasonOwnerNotFound      Reason = "owner_not_found"
	ReasonIDNumberMismatch   Reason = "id_exists_number_mismatch"
	ReasonStrongerIdentity   Reason = "number_exists_with_stronger_identity"
	ReasonNumberTaken        Reason = "number_taken"
	ReasonNumberReassigned   Reason = "number_conflict_resolved"
	ReasonRowFormat          Reason = "row_format_error"
)

// Status is the canonical record status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Change is a single proposed field update: fill an empty stored value
// with a non-empty imported one.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Normalized holds the cleaned, typed fields of one input row.
// Clients use Identifier and Number; patients use OwnerNumber and never
// declare their own number.
type Normalized struct {
	Identifier  string
	Number      int
	OwnerNumber int
	Name        string
	Fields      map[string]string
	Bools       map[string]bool
	Status      Status
}

// Row is one classified input line.
type Row struct {
	Index          int      `json:"row_index"`
	Raw            []string `json:"-"`
	Norm           *Normalized
	MatchBy        MatchBy  `json:"match_by"`
	Action         Action   `json:"action"`
	Reason         Reason   `json:"reason"`
	Detail         string   `json:"detail,omitempty"`
	AssignedNumber int      `json:"assigned_number,omitempty"`
	ExistingID     string   `json:"existing_id,omitempty"`
	ExistingNumber int      `json:"existing_number,omitempty"`
	Changes        []Change `json:"changes,omitempty"`
}

// Number returns the number to display or commit for this row: the
// allocator-assigned number for creates, the matched record's number for
// updates, otherwise whatever the row declared.
func (r *Row) Number() int {
	switch {
	case r.AssignedNumber != 0:
		return r.AssignedNumber
	case r.ExistingNumber != 0:
		return r.ExistingNumber
	case r.Norm != nil:
		return r.Norm.Number
	default:
		return 0
	}
}

// Identifier returns the row's identity key value, if any.
func (r *Row) Identifier() string {
	if r.Norm == nil {
		return ""
	}
	return r.Norm.Identifier
}

// Name returns the row's normalized name, if any.
func (r *Row) Name() string {
	if r.Norm == nil {
		return ""
	}
	return r.Norm.Name
}

// OverrideSelection lists row indices the operator wants committed despite
// being excluded by classification.
type OverrideSelection struct {
	Invalid   []int `json:"invalid" yaml:"invalid"`
	Conflicts []int `json:"conflicts" yaml:"conflicts"`
	Skipped   []int `json:"skipped" yaml:"skipped"`
}

// Empty reports whether no overrides were selected.
func (s OverrideSelection) Empty() bool {
	return len(s.Invalid) == 0 && len(s.Conflicts) == 0 && len(s.Skipped) == 0
}

// RowFailure records an operation that still failed after the last
// recovery round.
type RowFailure struct {
	Index int    `json:"row_index"`
	Phase string `json:"phase"`
	Error string `json:"error"`
}
