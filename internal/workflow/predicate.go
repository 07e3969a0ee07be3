package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate is the flat trigger condition attached to a workflow. All
// present fields are ANDed; an absent field passes automatically, so
// the zero Predicate matches every event. There is no boolean
// composition beyond that.
type Predicate struct {
	ContainsKeyword string `json:"contains_keyword,omitempty"`
	TypeIs          string `json:"type_is,omitempty"`
}

// DecodePredicate parses the stored conditions JSON into a typed
// Predicate. Empty input means "match everything".
func DecodePredicate(raw string) (Predicate, error) {
	if strings.TrimSpace(raw) == "" {
		return Predicate{}, nil
	}
	var p Predicate
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Predicate{}, fmt.Errorf("parsing conditions: %w", err)
	}
	return p, nil
}

// Matches reports whether a classification event satisfies the
// predicate. Keyword matching is a case-insensitive substring test
// against the event content; type matching is exact.
func (p Predicate) Matches(entityType, content string) bool {
	if p.ContainsKeyword != "" &&
		!strings.Contains(strings.ToLower(content), strings.ToLower(p.ContainsKeyword)) {
		return false
	}
	if p.TypeIs != "" && p.TypeIs != entityType {
		return false
	}
	return true
}
