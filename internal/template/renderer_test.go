package template

import (
	"regexp"
	"strings"
	"testing"
)

func TestExtractOrderFactsFromSubjectAndBody(t *testing.T) {
	facts := ExtractOrderFacts(
		"Your Order #A1B2-9 Confirmed",
		"Total: $42.50 ... click to accept: https://pay.example.com/accept/xyz",
	)
	if facts.OrderNumber != "A1B2-9" {
		t.Fatalf("unexpected order number: %q", facts.OrderNumber)
	}
	if facts.Price != "$42.50" {
		t.Fatalf("unexpected price: %q", facts.Price)
	}
}

func TestExtractOrderFactsFirstPatternWins(t *testing.T) {
	facts := ExtractOrderFacts("order: ABC-1 confirmation: XYZ-2", "")
	if facts.OrderNumber != "ABC-1" {
		t.Fatalf("expected the first pattern family to win, got %q", facts.OrderNumber)
	}
}

func TestExtractOrderFactsProductAndQuantity(t *testing.T) {
	facts := ExtractOrderFacts("New order", "Product: Blue Widget, Qty: 3, SKU: BW-100")
	if facts.Product != "Blue Widget" {
		t.Fatalf("unexpected product: %q", facts.Product)
	}
	if facts.Quantity != "3" {
		t.Fatalf("unexpected quantity: %q", facts.Quantity)
	}
	if facts.ProductID != "BW-100" {
		t.Fatalf("unexpected sku: %q", facts.ProductID)
	}
}

func TestExtractOrderFactsSyntheticReferenceShape(t *testing.T) {
	facts := ExtractOrderFacts("hello", "completely unstructured text")
	want := regexp.MustCompile(`^ORD-[0-9A-Z]+-[0-9A-Z]{4}$`)
	if !want.MatchString(facts.OrderNumber) {
		t.Fatalf("synthetic reference %q does not match %s", facts.OrderNumber, want)
	}
}

func TestRenderSubstitutionAndFallbacks(t *testing.T) {
	facts := OrderFacts{OrderNumber: "A1B2-9", OrderDate: "Monday, March 2, 2026"}
	out := Render(
		"Hi {{customerName}}, order {{ORDERNUMBER}} totals {{price}}, qty {{quantity}}, sku {{productId}}, re: {{subject}}",
		facts, "Jane", "jane@example.com", "Your Order",
	)
	if !strings.Contains(out, "Hi Jane, order A1B2-9") {
		t.Fatalf("substitution failed: %q", out)
	}
	if !strings.Contains(out, "totals See order details") {
		t.Fatalf("price fallback missing: %q", out)
	}
	if !strings.Contains(out, "qty 1") || !strings.Contains(out, "sku N/A") {
		t.Fatalf("quantity/sku fallbacks missing: %q", out)
	}
	if strings.Contains(out, "{{") {
		t.Fatalf("unresolved tokens left in output: %q", out)
	}
}

func TestRenderEndToEndScenario(t *testing.T) {
	subject := "Your Order #A1B2-9 Confirmed"
	body := "Total: $42.50 ... click to accept: https://pay.example.com/accept/xyz"
	facts := ExtractOrderFacts(subject, body)
	name := CustomerName("shop@store.com")
	out := Render("Hi {{customerName}}, order {{orderNumber}} totals {{price}}", facts, name, CustomerEmail("shop@store.com"), subject)
	if !strings.Contains(out, "order A1B2-9 totals $42.50") {
		t.Fatalf("unexpected rendering: %q", out)
	}
}

func TestCustomerName(t *testing.T) {
	cases := map[string]string{
		`John Doe <john@example.com>`: "John Doe",
		`"Jane" <jane@example.com>`:   "Jane",
		`bob.smith@example.com`:       "Bob.smith",
		`not an address`:              "Valued Customer",
	}
	for from, want := range cases {
		if got := CustomerName(from); got != want {
			t.Fatalf("CustomerName(%q) = %q, want %q", from, got, want)
		}
	}
}

func TestCustomerEmail(t *testing.T) {
	if got := CustomerEmail("John Doe <john@example.com>"); got != "john@example.com" {
		t.Fatalf("unexpected address: %q", got)
	}
	if got := CustomerEmail("opaque-string"); got != "opaque-string" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestDefaultConfirmationBodyRenders(t *testing.T) {
	facts := ExtractOrderFacts("Order #77", "Total: $10")
	out := Render(DefaultConfirmationBody, facts, "Jane", "jane@example.com", "Order #77")
	if strings.Contains(out, "{{") {
		t.Fatalf("default template left tokens unresolved: %q", out)
	}
	if !strings.Contains(out, "Order Number: #77") {
		t.Fatalf("order number missing from default body: %q", out)
	}
}
