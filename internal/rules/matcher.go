// Package rules implements the pure rule-matching core: no I/O, no side
// effects, safe to call from any number of concurrent pipelines.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/models"
)

// Matches reports whether an email satisfies a rule's condition set.
// Inactive rules and rules with zero usable conditions never match. A
// condition that cannot be evaluated (unknown operator or field, invalid
// regex) counts as false rather than propagating: one malformed rule must not
// block evaluation of the rest.
func Matches(email *mailbox.ParsedMessage, rule *models.Rule) bool {
	if email == nil || rule == nil || !rule.IsActive {
		return false
	}
	if rule.Conditions.Empty() {
		return false
	}

	logic := rule.Logic
	if logic == "" {
		logic = models.LogicAnd
	}

	for _, cond := range rule.Conditions {
		ok := evaluate(email, cond)
		if logic == models.LogicOr && ok {
			return true
		}
		if logic != models.LogicOr && !ok {
			return false
		}
	}
	return logic != models.LogicOr
}

// SelectRule returns the highest-priority matching rule, or nil. Candidates
// are evaluated in descending priority with ties broken by creation order
// then id, and evaluation stops at the first hit: first match wins is the
// dispatch contract, lower-priority rules are never consulted after a hit.
func SelectRule(email *mailbox.ParsedMessage, candidates []*models.Rule) *models.Rule {
	ordered := make([]*models.Rule, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, rule := range ordered {
		if Matches(email, rule) {
			return rule
		}
	}
	return nil
}

func evaluate(email *mailbox.ParsedMessage, cond models.Condition) bool {
	field, ok := fieldValue(email, cond.Field)
	if !ok {
		return false
	}
	value := strings.ToLower(cond.Value)

	switch cond.Operator {
	case models.OpEquals:
		return field == value
	case models.OpNotEquals:
		return field != value
	case models.OpContains:
		return strings.Contains(field, value)
	case models.OpNotContains:
		return !strings.Contains(field, value)
	case models.OpStartsWith:
		return strings.HasPrefix(field, value)
	case models.OpEndsWith:
		return strings.HasSuffix(field, value)
	case models.OpRegex:
		re, err := regexp.Compile("(?i)" + cond.Value)
		if err != nil {
			return false
		}
		return re.MatchString(field)
	default:
		return false
	}
}

func fieldValue(email *mailbox.ParsedMessage, field string) (string, bool) {
	switch field {
	case "from":
		return strings.ToLower(email.From), true
	case "to":
		return strings.ToLower(strings.Join(email.To, ",")), true
	case "subject":
		return strings.ToLower(email.Subject), true
	case "body":
		body := email.Body
		if body == "" {
			body = email.BodyPreview
		}
		return strings.ToLower(body), true
	case "label", "labels":
		return strings.ToLower(strings.Join(email.Labels, ",")), true
	default:
		return "", false
	}
}
