package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailConfig carries the OAuth application credentials.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GmailClient implements Client against the Gmail REST API.
type GmailClient struct {
	config *oauth2.Config
	logger *log.Logger
}

var _ Client = (*GmailClient)(nil)

// NewGmailClient builds a Gmail-backed mailbox client.
func NewGmailClient(cfg GmailConfig) *GmailClient {
	return &GmailClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				gmail.GmailModifyScope,
				gmail.GmailSendScope,
			},
		},
		logger: log.New(log.Writer(), "[GMAIL] ", log.LstdFlags),
	}
}

// AuthURL returns the consent URL for connecting a new mailbox.
func (c *GmailClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades an authorization code for tokens.
func (c *GmailClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

func (c *GmailClient) service(ctx context.Context, creds Credentials) (*gmail.Service, error) {
	httpClient := c.config.Client(ctx, &oauth2.Token{AccessToken: creds.AccessToken})
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}
	return srv, nil
}

func (c *GmailClient) ListRecent(ctx context.Context, creds Credentials, query string, max int64) ([]MessageRef, error) {
	srv, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	call := srv.Users.Messages.List("me").MaxResults(max).LabelIds("INBOX")
	if query != "" {
		call = call.Q(query)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	refs := make([]MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

func (c *GmailClient) GetMessage(ctx context.Context, creds Credentials, id string) (*ParsedMessage, error) {
	srv, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("unable to decode raw payload for %s: %w", id, err)
	}

	parsed, err := ParseRawMessage(raw)
	if err != nil {
		// Fall back to the provider snippet so a single unparseable message
		// still gets evaluated against subject/from rules.
		c.logger.Printf("falling back to snippet for message %s: %v", id, err)
		parsed = &ParsedMessage{Body: msg.Snippet, BodyPreview: msg.Snippet}
	}

	parsed.ID = msg.Id
	parsed.ThreadID = msg.ThreadId
	parsed.Labels = msg.LabelIds
	parsed.Snippet = msg.Snippet
	if parsed.BodyPreview == "" {
		parsed.BodyPreview = msg.Snippet
	}
	if parsed.Date.IsZero() && msg.InternalDate > 0 {
		parsed.Date = time.UnixMilli(msg.InternalDate)
	}
	return parsed, nil
}

func (c *GmailClient) SendReply(ctx context.Context, creds Credentials, threadID, to, subject, body string) (string, error) {
	srv, err := c.service(ctx, creds)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	sent, err := srv.Users.Messages.Send("me", &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(b.String())),
		ThreadId: threadID,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to send reply: %w", err)
	}
	return sent.Id, nil
}

func (c *GmailClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return &Token{AccessToken: tok.AccessToken, Expiry: expiry}, nil
}

func (c *GmailClient) MarkAsRead(ctx context.Context, creds Credentials, id string) error {
	srv, err := c.service(ctx, creds)
	if err != nil {
		return err
	}
	_, err = srv.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to mark message %s as read: %w", id, err)
	}
	return nil
}

func (c *GmailClient) Watch(ctx context.Context, creds Credentials, topic string) (*WatchHandle, error) {
	srv, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Users.Watch("me", &gmail.WatchRequest{
		TopicName:         topic,
		LabelIds:          []string{"INBOX"},
		LabelFilterAction: "include",
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	return &WatchHandle{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}
