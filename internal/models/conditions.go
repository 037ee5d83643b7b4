package models

import (
	"encoding/json"
	"strings"
)

// Operator is the comparison applied by a single rule condition.
type Operator string

const (
	OpEquals      Operator = "EQUALS"
	OpNotEquals   Operator = "NOT_EQUALS"
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
	OpStartsWith  Operator = "STARTS_WITH"
	OpEndsWith    Operator = "ENDS_WITH"
	OpRegex       Operator = "REGEX"
)

// RuleLogic combines condition results.
type RuleLogic string

const (
	LogicAnd RuleLogic = "AND"
	LogicOr  RuleLogic = "OR"
)

// Condition is one field/operator/value predicate.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Conditions is the parsed, canonical condition set of a rule.
type Conditions []Condition

// legacyConditions is the flat object form some stored rules still carry.
// It normalizes to case-insensitive CONTAINS conditions.
type legacyConditions struct {
	MatchSubject string `json:"matchSubject"`
	MatchFrom    string `json:"matchFrom"`
	MatchBody    string `json:"matchBody"`
}

func (l legacyConditions) toConditions() Conditions {
	var out Conditions
	if l.MatchSubject != "" {
		out = append(out, Condition{Field: "subject", Operator: OpContains, Value: l.MatchSubject})
	}
	if l.MatchFrom != "" {
		out = append(out, Condition{Field: "from", Operator: OpContains, Value: l.MatchFrom})
	}
	if l.MatchBody != "" {
		out = append(out, Condition{Field: "body", Operator: OpContains, Value: l.MatchBody})
	}
	return out
}

// ParseConditions decodes a stored conditions payload into its canonical form.
// The payload may be the condition array, the legacy flat object, or either of
// those double-encoded as a JSON string. Any payload that cannot be decoded
// yields an empty set: a rule with no usable conditions never matches, so a
// malformed rule can never fire on everything.
func ParseConditions(raw string) Conditions {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	// Double-encoded: a JSON string wrapping the real payload.
	if strings.HasPrefix(raw, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			return nil
		}
		return ParseConditions(inner)
	}

	if strings.HasPrefix(raw, "[") {
		var conds Conditions
		if err := json.Unmarshal([]byte(raw), &conds); err != nil {
			return nil
		}
		return conds.normalize()
	}

	var legacy legacyConditions
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return nil
	}
	return legacy.toConditions()
}

// normalize drops entries that cannot be evaluated and canonicalizes fields.
func (c Conditions) normalize() Conditions {
	var out Conditions
	for _, cond := range c {
		cond.Field = strings.ToLower(strings.TrimSpace(cond.Field))
		cond.Operator = Operator(strings.ToUpper(strings.TrimSpace(string(cond.Operator))))
		if cond.Field == "" || cond.Operator == "" || cond.Value == "" {
			continue
		}
		out = append(out, cond)
	}
	return out
}

// Empty reports whether the set has no usable conditions.
func (c Conditions) Empty() bool {
	return len(c) == 0
}

// Encode serializes the canonical form for storage.
func (c Conditions) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
