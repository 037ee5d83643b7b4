// Package orders performs the outbound HTTP side of order acceptance:
// following accept links with a bounded, fixed-delay retry budget.
package orders

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	maxRedirects      = 5

	// Some shops block obvious bot agents; present a browser-like one.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Result is the outcome of one acceptance call, covering all attempts.
type Result struct {
	Success      bool
	StatusCode   int
	Err          error
	ResponseTime time.Duration
	Attempts     int
}

// Acceptor follows accept links. The retry here is the in-process layer for
// transient network failure; it is independent of the record-level retry the
// order processor keeps in retry_count.
type Acceptor struct {
	client     *http.Client
	logger     *log.Logger
	maxRetries int
	retryDelay time.Duration
}

// AcceptorOption customizes an Acceptor.
type AcceptorOption func(*Acceptor)

// WithRetryPolicy overrides the retry budget and inter-attempt delay.
func WithRetryPolicy(maxRetries int, delay time.Duration) AcceptorOption {
	return func(a *Acceptor) {
		a.maxRetries = maxRetries
		a.retryDelay = delay
	}
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) AcceptorOption {
	return func(a *Acceptor) {
		a.client = client
	}
}

// NewAcceptor builds an Acceptor with the production policy: 10s per-attempt
// timeout, at most 5 redirects, 1 initial try plus 3 retries with a fixed 2s
// delay between attempts.
func NewAcceptor(opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		client: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		logger:     log.New(log.Writer(), "[ORDERS] ", log.LstdFlags),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AcceptOrder issues a GET against the accept link. Status 2xx-3xx counts as
// success. Retries run as an explicit bounded loop with an attempt counter,
// not recursion, so the attempt count stays testable and stack depth bounded.
func (a *Acceptor) AcceptOrder(ctx context.Context, link string) Result {
	return a.attempt(ctx, link, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	})
}

// AcceptOrderForm is the POST variant for form-based acceptance flows, with
// the same retry policy and URL-encoded body.
func (a *Acceptor) AcceptOrderForm(ctx context.Context, link string, form url.Values) Result {
	return a.attempt(ctx, link, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, link, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (a *Acceptor) attempt(ctx context.Context, link string, build func(context.Context) (*http.Request, error)) Result {
	start := time.Now()
	var last Result

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Printf("retrying order acceptance in %s (attempt %d/%d): %s",
				a.retryDelay, attempt+1, a.maxRetries+1, link)
			select {
			case <-time.After(a.retryDelay):
			case <-ctx.Done():
				last.Err = ctx.Err()
				last.ResponseTime = time.Since(start)
				last.Attempts = attempt
				return last
			}
		}

		status, err := a.doOnce(ctx, build)
		last = Result{
			Success:      err == nil,
			StatusCode:   status,
			Err:          err,
			ResponseTime: time.Since(start),
			Attempts:     attempt + 1,
		}
		if err == nil {
			a.logger.Printf("order accepted in %s: %s", last.ResponseTime, link)
			return last
		}
		a.logger.Printf("order acceptance attempt %d failed for %s: %v", attempt+1, link, err)
	}

	return last
}

func (a *Acceptor) doOnce(ctx context.Context, build func(context.Context) (*http.Request, error)) (int, error) {
	req, err := build(ctx)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// ValidateLink probes a link with HEAD to check it is reachable.
func (a *Acceptor) ValidateLink(ctx context.Context, link string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// RequiresAuth reports whether the link answers with an auth challenge.
func (a *Acceptor) RequiresAuth(ctx context.Context, link string) bool {
	client := &http.Client{
		Timeout: a.client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
}

var (
	formActionPattern = regexp.MustCompile(`(?i)<form[^>]*action=["']([^"']+)["'][^>]*>`)
	formInputPattern  = regexp.MustCompile(`(?i)<input[^>]*name=["']([^"']+)["'][^>]*value=["']([^"']+)["'][^>]*>`)
)

// FormDetails is the target and prefilled fields of an acceptance form.
type FormDetails struct {
	Action string
	Fields url.Values
}

// ExtractFormDetails pulls the form action and hidden input values out of an
// acceptance page so AcceptOrderForm can replay them.
func ExtractFormDetails(html string) *FormDetails {
	action := ""
	if m := formActionPattern.FindStringSubmatch(html); m != nil {
		action = m[1]
	}
	fields := url.Values{}
	for _, m := range formInputPattern.FindAllStringSubmatch(html, -1) {
		fields.Set(m[1], m[2])
	}
	if action == "" && len(fields) == 0 {
		return nil
	}
	return &FormDetails{Action: action, Fields: fields}
}
