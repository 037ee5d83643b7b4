package rules

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Ordered keyword families for bare URLs in body text. First hit wins.
var acceptLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*accept[^\s"'<>]*`),
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*confirm[^\s"'<>]*`),
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*verify[^\s"'<>]*`),
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*approve[^\s"'<>]*`),
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*order[^\s"'<>]*`),
	regexp.MustCompile(`(?i)https?://[^\s"'<>]*claim[^\s"'<>]*`),
}

var acceptAnchorText = regexp.MustCompile(`(?i)accept|confirm|verify|approve`)

// ExtractAcceptLink finds the URL in an email body most likely to confirm or
// accept an order. Custom patterns, when supplied, replace the built-in
// families. Bare-URL scanning runs first; for HTML bodies without a keyword
// URL, anchors whose visible text or href look like an accept action are
// considered next. Returns "" when nothing plausible is found.
func ExtractAcceptLink(body string, customPatterns []string) string {
	patterns := acceptLinkPatterns
	if len(customPatterns) > 0 {
		patterns = make([]*regexp.Regexp, 0, len(customPatterns))
		for _, p := range customPatterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			patterns = append(patterns, re)
		}
	}

	for _, re := range patterns {
		if m := re.FindString(body); m != "" {
			return cleanLink(m)
		}
	}

	if link := acceptAnchorHref(body); link != "" {
		return cleanLink(link)
	}
	return ""
}

// acceptAnchorHref walks HTML anchors looking for an accept-style link whose
// keyword lives in the anchor text rather than the URL.
func acceptAnchorHref(body string) string {
	if !strings.Contains(body, "<a") {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var href string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tok := tokenizer.Token()
			if tok.Data != "a" {
				continue
			}
			href = ""
			for _, attr := range tok.Attr {
				if attr.Key == "href" && strings.HasPrefix(attr.Val, "http") {
					href = attr.Val
				}
			}
		case html.TextToken:
			if href != "" && acceptAnchorText.MatchString(string(tokenizer.Text())) {
				return href
			}
		case html.EndTagToken:
			tok := tokenizer.Token()
			if tok.Data == "a" {
				href = ""
			}
		}
	}
}

func cleanLink(link string) string {
	return strings.TrimRight(link, ">.,;)\"' \t\r\n")
}
