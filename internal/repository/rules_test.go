package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/inboxpilot/inboxpilot/internal/models"
)

func ruleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "name", "description", "conditions", "logic", "priority",
		"action", "forward_to", "confirmation_subject", "confirmation_body",
		"auto_accept", "mark_as_read", "is_active", "match_count", "success_count",
		"failure_count", "last_matched", "created_at", "updated_at",
	})
}

func TestRuleListActiveParsesConditionsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewRuleRepository(db)
	now := time.Now()

	rows := ruleRows().
		AddRow("r1", "acc-1", "orders", "", `[{"field":"subject","operator":"CONTAINS","value":"order"}]`,
			"AND", 10, "ACCEPT", nil, "", "", true, false, true, 0, 0, 0, nil, now, now).
		AddRow("r2", "acc-1", "broken", "", `{malformed`,
			"AND", 5, "REJECT", nil, "", "", false, false, true, 0, 0, 0, nil, now, now)

	mock.ExpectQuery("SELECT .+ FROM rules").
		WithArgs("acc-1").
		WillReturnRows(rows)

	rules, err := repo.ListActiveByAccount(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("ListActiveByAccount: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Conditions.Empty() {
		t.Fatal("first rule should carry parsed conditions")
	}
	if !rules[1].Conditions.Empty() {
		t.Fatal("malformed conditions must parse to an empty, never-matching set")
	}
}

func TestRuleIncrementMatchIsSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewRuleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET match_count = match_count + 1, last_matched = NOW()")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementMatch(context.Background(), "r1"); err != nil {
		t.Fatalf("IncrementMatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRuleCreateRejectsInvalidRules(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewRuleRepository(db)
	rule := &models.Rule{
		AccountID: "acc-1",
		Name:      "confirm without templates",
		Action:    models.ActionSendConfirmation,
	}
	if err := repo.Create(context.Background(), rule); err != models.ErrRuleConfirmationTemplates {
		t.Fatalf("expected template validation error, got %v", err)
	}
}

func TestRuleCreateEncodesCanonicalConditions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewRuleRepository(db)
	rule := &models.Rule{
		AccountID: "acc-1",
		Name:      "orders",
		Action:    models.ActionAccept,
		IsActive:  true,
		Conditions: models.Conditions{
			{Field: "subject", Operator: models.OpContains, Value: "order"},
		},
	}

	mock.ExpectExec("INSERT INTO rules").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), rule); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("Create must assign an id")
	}
	if rule.Logic != models.LogicAnd {
		t.Fatalf("Create must default logic to AND, got %s", rule.Logic)
	}
	if rule.RawConditions == "" {
		t.Fatal("Create must encode conditions for storage")
	}
	if models.ParseConditions(rule.RawConditions).Empty() {
		t.Fatal("encoded conditions must round-trip")
	}
}
