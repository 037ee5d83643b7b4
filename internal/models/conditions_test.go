package models

import (
	"testing"
)

func TestParseConditionsArrayForm(t *testing.T) {
	raw := `[{"field":"subject","operator":"CONTAINS","value":"order"},{"field":"from","operator":"ENDS_WITH","value":"shop.com"}]`
	conds := ParseConditions(raw)
	if len(conds) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(conds))
	}
	if conds[0].Field != "subject" || conds[0].Operator != OpContains {
		t.Fatalf("unexpected first condition: %+v", conds[0])
	}
	if conds[1].Operator != OpEndsWith {
		t.Fatalf("unexpected second operator: %s", conds[1].Operator)
	}
}

func TestParseConditionsLegacyFlatObject(t *testing.T) {
	raw := `{"matchSubject":"order","matchFrom":"shop.com"}`
	conds := ParseConditions(raw)
	if len(conds) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(conds))
	}
	for _, c := range conds {
		if c.Operator != OpContains {
			t.Fatalf("legacy conditions must normalize to CONTAINS, got %s", c.Operator)
		}
	}
	if conds[0].Field != "subject" || conds[0].Value != "order" {
		t.Fatalf("unexpected condition: %+v", conds[0])
	}
}

func TestParseConditionsDoubleEncoded(t *testing.T) {
	raw := `"{\"matchBody\":\"invoice\"}"`
	conds := ParseConditions(raw)
	if len(conds) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(conds))
	}
	if conds[0].Field != "body" || conds[0].Value != "invoice" {
		t.Fatalf("unexpected condition: %+v", conds[0])
	}
}

func TestParseConditionsMalformedYieldsEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "{not json", `[{"field":}]`, `42`} {
		if conds := ParseConditions(raw); !conds.Empty() {
			t.Fatalf("expected empty conditions for %q, got %+v", raw, conds)
		}
	}
}

func TestParseConditionsDropsUnusableEntries(t *testing.T) {
	raw := `[{"field":"","operator":"CONTAINS","value":"x"},{"field":"subject","operator":"contains","value":"order"}]`
	conds := ParseConditions(raw)
	if len(conds) != 1 {
		t.Fatalf("expected 1 usable condition, got %d", len(conds))
	}
	if conds[0].Operator != OpContains {
		t.Fatalf("operator should be upcased, got %s", conds[0].Operator)
	}
}

func TestRuleValidateConfirmationTemplates(t *testing.T) {
	r := &Rule{
		AccountID: "acc-1",
		Name:      "confirm orders",
		Action:    ActionSendConfirmation,
	}
	if err := r.Validate(); err != ErrRuleConfirmationTemplates {
		t.Fatalf("expected template error, got %v", err)
	}
	r.ConfirmationSubject = "Order {{orderNumber}}"
	r.ConfirmationBody = "Hi {{customerName}}"
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
}

func TestProcessingStatusTerminal(t *testing.T) {
	terminal := []ProcessingStatus{StatusAccepted, StatusFailed, StatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Fatal("PENDING and PROCESSING are not terminal")
	}
}
