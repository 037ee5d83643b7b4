package rules

import (
	"testing"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/models"
)

func activeRule(id string, priority int, conds models.Conditions) *models.Rule {
	return &models.Rule{
		ID:         id,
		Name:       id,
		Priority:   priority,
		Conditions: conds,
		Logic:      models.LogicAnd,
		IsActive:   true,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func orderEmail() *mailbox.ParsedMessage {
	return &mailbox.ParsedMessage{
		ID:      "msg-1",
		From:    "shop@store.com",
		To:      []string{"buyer@example.com"},
		Subject: "Your Order #A1B2-9 Confirmed",
		Body:    "Total: $42.50 ... click to accept: https://pay.example.com/accept/xyz",
		Labels:  []string{"INBOX", "UNREAD"},
	}
}

func TestMatchesEmptyConditionsNeverMatch(t *testing.T) {
	rule := activeRule("r1", 10, nil)
	if Matches(orderEmail(), rule) {
		t.Fatal("rule with no conditions must never match")
	}
	empty := &mailbox.ParsedMessage{}
	if Matches(empty, rule) {
		t.Fatal("empty rule must not match even a fully empty email")
	}
}

func TestMatchesInactiveRule(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
	})
	rule.IsActive = false
	if Matches(orderEmail(), rule) {
		t.Fatal("inactive rule must not match")
	}
}

func TestMatchesAndSemantics(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
		{Field: "from", Operator: models.OpContains, Value: "shop.com"},
	})
	email := orderEmail()
	email.From = "noreply@othermail.com"
	if Matches(email, rule) {
		t.Fatal("AND rule must fail when one condition fails")
	}
	email.From = "orders@shop.com"
	if !Matches(email, rule) {
		t.Fatal("AND rule must pass when all conditions hold")
	}
}

func TestMatchesOrSemantics(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "zzz-no-match"},
		{Field: "from", Operator: models.OpEndsWith, Value: "store.com"},
	})
	rule.Logic = models.LogicOr
	if !Matches(orderEmail(), rule) {
		t.Fatal("OR rule must pass when any condition holds")
	}
}

func TestMatchesDefaultsToAndWhenLogicUnset(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
		{Field: "from", Operator: models.OpContains, Value: "nope.example"},
	})
	rule.Logic = ""
	if Matches(orderEmail(), rule) {
		t.Fatal("unset logic must behave as AND")
	}
}

func TestMatchesOperators(t *testing.T) {
	email := orderEmail()
	cases := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals", models.Condition{Field: "from", Operator: models.OpEquals, Value: "Shop@Store.com"}, true},
		{"not_equals", models.Condition{Field: "from", Operator: models.OpNotEquals, Value: "other@store.com"}, true},
		{"contains", models.Condition{Field: "subject", Operator: models.OpContains, Value: "ORDER"}, true},
		{"not_contains", models.Condition{Field: "subject", Operator: models.OpNotContains, Value: "refund"}, true},
		{"starts_with", models.Condition{Field: "subject", Operator: models.OpStartsWith, Value: "your order"}, true},
		{"ends_with", models.Condition{Field: "subject", Operator: models.OpEndsWith, Value: "confirmed"}, true},
		{"regex", models.Condition{Field: "subject", Operator: models.OpRegex, Value: `#[A-Z0-9-]+`}, true},
		{"regex_invalid", models.Condition{Field: "subject", Operator: models.OpRegex, Value: `([`}, false},
		{"unknown_operator", models.Condition{Field: "subject", Operator: "FUZZY", Value: "order"}, false},
		{"unknown_field", models.Condition{Field: "cc", Operator: models.OpContains, Value: "order"}, false},
		{"labels", models.Condition{Field: "labels", Operator: models.OpContains, Value: "unread"}, true},
		{"to", models.Condition{Field: "to", Operator: models.OpContains, Value: "buyer@"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := activeRule("r1", 10, models.Conditions{tc.cond})
			if got := Matches(email, rule); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMatchesBodyFallsBackToPreview(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "body", Operator: models.OpContains, Value: "total"},
	})
	email := orderEmail()
	email.Body = ""
	email.BodyPreview = "Total: $42.50"
	if !Matches(email, rule) {
		t.Fatal("body matching should use the preview when the full body is absent")
	}
}

func TestSelectRuleFirstMatchWins(t *testing.T) {
	r1 := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
	})
	r2 := activeRule("r2", 5, models.Conditions{
		{Field: "from", Operator: models.OpContains, Value: "store.com"},
	})

	// Both match: the higher priority rule wins regardless of slice order.
	if got := SelectRule(orderEmail(), []*models.Rule{r2, r1}); got == nil || got.ID != "r1" {
		t.Fatalf("expected r1, got %+v", got)
	}

	// Higher priority does not match: the lower one is selected.
	r1.Conditions = models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "no-such-subject"},
	}
	if got := SelectRule(orderEmail(), []*models.Rule{r1, r2}); got == nil || got.ID != "r2" {
		t.Fatalf("expected r2, got %+v", got)
	}
}

func TestSelectRuleTieBreaksByCreationOrder(t *testing.T) {
	older := activeRule("b-newer-id", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
	})
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := activeRule("a-older-id", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "order"},
	})
	newer.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if got := SelectRule(orderEmail(), []*models.Rule{newer, older}); got == nil || got.ID != older.ID {
		t.Fatalf("expected the earlier-created rule, got %+v", got)
	}
}

func TestSelectRuleNoMatch(t *testing.T) {
	rule := activeRule("r1", 10, models.Conditions{
		{Field: "subject", Operator: models.OpContains, Value: "unrelated"},
	})
	if got := SelectRule(orderEmail(), []*models.Rule{rule}); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
