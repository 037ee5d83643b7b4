package rules

import "testing"

func TestExtractAcceptLinkKeywordURL(t *testing.T) {
	body := "Thanks for your order!\nclick to accept: https://pay.example.com/accept/xyz for details"
	if got := ExtractAcceptLink(body, nil); got != "https://pay.example.com/accept/xyz" {
		t.Fatalf("unexpected link: %q", got)
	}
}

func TestExtractAcceptLinkPrefersAcceptOverOrder(t *testing.T) {
	body := "https://shop.example.com/order/123 https://shop.example.com/confirm/123"
	if got := ExtractAcceptLink(body, nil); got != "https://shop.example.com/confirm/123" {
		t.Fatalf("confirm should outrank order, got %q", got)
	}
}

func TestExtractAcceptLinkTrimsTrailingJunk(t *testing.T) {
	body := "accept here: https://pay.example.com/accept/xyz>."
	if got := ExtractAcceptLink(body, nil); got != "https://pay.example.com/accept/xyz" {
		t.Fatalf("unexpected link: %q", got)
	}
}

func TestExtractAcceptLinkFromAnchorText(t *testing.T) {
	body := `<p>Hi!</p><a href="https://shop.example.com/a/81f3">Accept your delivery</a>`
	if got := ExtractAcceptLink(body, nil); got != "https://shop.example.com/a/81f3" {
		t.Fatalf("unexpected link: %q", got)
	}
}

func TestExtractAcceptLinkCustomPatterns(t *testing.T) {
	body := "go to https://example.com/xyz/take-order now"
	got := ExtractAcceptLink(body, []string{`https?://[^\s]*take-order[^\s]*`})
	if got != "https://example.com/xyz/take-order" {
		t.Fatalf("unexpected link: %q", got)
	}
	// Invalid custom patterns are skipped, not fatal.
	if got := ExtractAcceptLink(body, []string{`([`}); got != "" {
		t.Fatalf("expected no link, got %q", got)
	}
}

func TestExtractAcceptLinkNone(t *testing.T) {
	if got := ExtractAcceptLink("no links here, just text", nil); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
