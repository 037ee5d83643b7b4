// Package template turns free-text order emails into structured facts and
// fills user-authored confirmation templates from them.
package template

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OrderFacts is what the extractor could learn about the order. Empty fields
// fall back to readable defaults at render time, never to the raw token.
type OrderFacts struct {
	OrderNumber string
	Price       string
	Product     string
	Quantity    string
	ProductID   string
	OrderDate   string
}

// Pattern families per fact. Each list is ordered: the first pattern that
// matches anywhere in subject+body wins, later ones are never consulted.
var (
	orderNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)order\s*#?\s*:?\s*([A-Z0-9-]+)`),
		regexp.MustCompile(`(?i)order\s*(?:number|no|id)\s*:?\s*([A-Z0-9-]+)`),
		regexp.MustCompile(`(?i)#([A-Z0-9-]{4,})`),
		regexp.MustCompile(`(?i)confirmation\s*#?\s*:?\s*([A-Z0-9-]+)`),
	}
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)total\s*:?\s*\$?\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)amount\s*:?\s*\$?\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)price\s*:?\s*\$?\s*([\d,]+\.?\d*)`),
	}
	productPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)product\s*:?\s*(.+?)(?:\n|$|,|\|)`),
		regexp.MustCompile(`(?i)item\s*:?\s*(.+?)(?:\n|$|,|\|)`),
		regexp.MustCompile(`(?i)ordered\s*:?\s*(.+?)(?:\n|$|,|\|)`),
	}
	quantityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:qty|quantity)\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d+)\s*(?:items?|pieces?|pcs)`),
	}
	skuPattern = regexp.MustCompile(`(?i)(?:sku|product\s*id|item\s*id)\s*:?\s*([A-Z0-9-]+)`)

	emailAddressPattern = regexp.MustCompile(`([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+)`)
	displayNamePattern  = regexp.MustCompile(`^([^<]+)<`)
	localPartPattern    = regexp.MustCompile(`([a-zA-Z0-9._-]+)@`)
)

const maxProductLen = 50

// ExtractOrderFacts applies the pattern families over subject and body and
// returns whatever could be extracted. The order number is never empty: when
// no pattern hits, a synthetic ORD- reference is generated so every
// confirmation has a usable identifier.
func ExtractOrderFacts(subject, body string) OrderFacts {
	fullText := subject + " " + body

	facts := OrderFacts{
		OrderNumber: firstGroup(orderNumberPatterns, fullText),
		Product:     firstGroup(productPatterns, fullText),
		Quantity:    firstGroup(quantityPatterns, fullText),
		OrderDate:   time.Now().Format("Monday, January 2, 2006"),
	}
	if price := firstGroup(pricePatterns, fullText); price != "" {
		facts.Price = "$" + price
	}
	if m := skuPattern.FindStringSubmatch(fullText); m != nil {
		facts.ProductID = m[1]
	}
	if len(facts.Product) > maxProductLen {
		facts.Product = strings.TrimSpace(facts.Product[:maxProductLen])
	}
	if facts.OrderNumber == "" {
		facts.OrderNumber = GenerateOrderRef()
	}
	return facts
}

func firstGroup(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// GenerateOrderRef builds a synthetic order reference of the shape
// ORD-<base36 timestamp>-<4 random base36 chars>.
func GenerateOrderRef() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return "ORD-" + ts + "-" + string(suffix)
}

var tokenPattern = regexp.MustCompile(`(?i)\{\{(orderNumber|price|product|quantity|productId|orderDate|customerName|customerEmail|subject)\}\}`)

// Render substitutes the fixed variable set into a template. Tokens are
// case-insensitive; facts that could not be extracted resolve to readable
// defaults rather than empty strings or the literal placeholder.
func Render(template string, facts OrderFacts, customerName, customerEmail, subject string) string {
	values := map[string]string{
		"ordernumber":   facts.OrderNumber,
		"price":         fallback(facts.Price, "See order details"),
		"product":       fallback(facts.Product, "Your items"),
		"quantity":      fallback(facts.Quantity, "1"),
		"productid":     fallback(facts.ProductID, "N/A"),
		"orderdate":     facts.OrderDate,
		"customername":  customerName,
		"customeremail": customerEmail,
		"subject":       subject,
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := strings.ToLower(tok[2 : len(tok)-2])
		return values[name]
	})
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// CustomerName derives a greeting name from a From header: the display name
// when present, else the capitalized local part of the address.
func CustomerName(from string) string {
	if m := displayNamePattern.FindStringSubmatch(from); m != nil {
		name := strings.TrimSpace(strings.ReplaceAll(m[1], `"`, ""))
		if name != "" {
			return name
		}
	}
	if m := localPartPattern.FindStringSubmatch(from); m != nil {
		local := m[1]
		return strings.ToUpper(local[:1]) + local[1:]
	}
	return "Valued Customer"
}

// CustomerEmail extracts the first address-looking substring from a From
// header, falling back to the raw header when none is found.
func CustomerEmail(from string) string {
	if m := emailAddressPattern.FindString(from); m != "" {
		return m
	}
	return from
}

// DefaultConfirmationSubject is used when a confirmation rule carries no
// subject template.
const DefaultConfirmationSubject = "Order Confirmation - #{{orderNumber}}"

// DefaultConfirmationBody is the stock confirmation used when a rule carries
// no body template.
const DefaultConfirmationBody = `Hi {{customerName}},

Great news! Your order has been confirmed!

ORDER DETAILS

Order Number: #{{orderNumber}}
Order Date: {{orderDate}}
Product: {{product}}
Quantity: {{quantity}}
Total Amount: {{price}}

What's Next?
- Your order is being processed
- You'll receive shipping updates via email
- Expected delivery: 3-5 business days

Need Help?
Simply reply to this email and we'll get back to you within 24 hours.

Thank you for shopping with us!

Best regards,
The Store Team

---
This is an automated confirmation. Your order #{{orderNumber}} has been received.`
