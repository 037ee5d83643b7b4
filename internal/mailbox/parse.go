package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

const (
	maxBodyBytes    = 128 * 1024
	previewRuneSize = 200
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// ParseRawMessage decodes an RFC822 payload into a ParsedMessage. Multipart
// messages prefer the first text/plain part; an HTML-only message keeps the
// HTML body as-is for substring matching and link extraction.
func ParseRawMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	parsed := &ParsedMessage{}
	parsed.Subject, _ = mr.Header.Subject()
	if date, err := mr.Header.Date(); err == nil {
		parsed.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = formatAddress(from[0])
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			parsed.To = append(parsed.To, formatAddress(addr))
		}
	}

	var plain, html string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep whatever was decoded before the malformed part.
			break
		}
		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := inline.ContentType()
		body, readErr := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if readErr != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ctype, "text/plain") && plain == "":
			plain = string(body)
		case strings.HasPrefix(ctype, "text/html") && html == "":
			html = string(body)
		}
	}

	parsed.Body = plain
	if parsed.Body == "" {
		parsed.Body = html
	}
	parsed.BodyPreview = preview(parsed.Body)
	parsed.Links = urlPattern.FindAllString(parsed.Body, -1)
	return parsed, nil
}

func formatAddress(a *gomail.Address) string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= previewRuneSize {
		return body
	}
	return string(runes[:previewRuneSize])
}
