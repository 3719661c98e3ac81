package parse

import (
	"strings"

	"github.com/dentexa/import-cli/internal/model"
)

// Legacy desktop exports use Hebrew tokens for boolean and status cells.
const (
	affirmativeToken = "כן"   // yes
	activeToken      = "פעיל" // active
)

// Bool maps an affirmative token to true; anything else is false.
func Bool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), affirmativeToken)
}

// StatusValue maps the active token to StatusActive; anything else,
// including blank, is StatusInactive.
func StatusValue(s string) model.Status {
	if strings.EqualFold(strings.TrimSpace(s), activeToken) {
		return model.StatusActive
	}
	return model.StatusInactive
}
