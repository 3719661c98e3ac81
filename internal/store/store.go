// Package store talks to the Dentexa records API. The API is a plain
// per-entity CRUD surface with no multi-row transactions; callers must
// tolerate partial failure across independent calls.
package store

// Entity names a record collection.
type Entity string

const (
	EntityClients  Entity = "clients"
	EntityPatients Entity = "patients"
)

// Valid reports whether e names a known collection.
func (e Entity) Valid() bool {
	return e == EntityClients || e == EntityPatients
}

// Fields is the flat field map of a record as exchanged with the API.
type Fields map[string]any

// Str returns the named field as a string, or "" when absent or not a
// string.
func (f Fields) Str(key string) string {
	s, _ := f[key].(string)
	return s
}

// Int returns the named field as an int. JSON decoding produces float64
// for numbers, so both are accepted.
func (f Fields) Int(key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns the named field as a bool, or false when absent.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Record is one stored record.
type Record struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}
