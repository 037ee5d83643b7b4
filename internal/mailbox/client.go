// Package mailbox wraps the mail provider behind a narrow client contract so
// the engine never touches provider SDK types directly.
package mailbox

import (
	"context"
	"strconv"
	"time"
)

// Credentials is the bearer credential handed to every provider call.
type Credentials struct {
	AccessToken string
}

// Token is the result of a refresh.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// MessageRef is a lightweight listing entry.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ParsedMessage is a fully fetched, header-decoded message. It is ephemeral:
// consumed once per polling cycle and never persisted as-is.
type ParsedMessage struct {
	ID          string
	ThreadID    string
	From        string
	To          []string
	Subject     string
	Body        string
	BodyPreview string
	Snippet     string
	Links       []string
	Labels      []string
	Date        time.Time
}

// WatchHandle describes an active push subscription.
type WatchHandle struct {
	HistoryID  uint64
	Expiration time.Time
}

// Client is the provider capability the engine consumes. Implementations must
// be safe for concurrent use; every call takes the credential explicitly so a
// refreshed token is picked up immediately.
type Client interface {
	// ListRecent returns refs for messages matching the provider query,
	// newest batch first in provider order.
	ListRecent(ctx context.Context, creds Credentials, query string, max int64) ([]MessageRef, error)

	// GetMessage fetches and parses a single message.
	GetMessage(ctx context.Context, creds Credentials, id string) (*ParsedMessage, error)

	// SendReply sends a threaded reply and returns the provider message id.
	SendReply(ctx context.Context, creds Credentials, threadID, to, subject, body string) (string, error)

	// RefreshToken exchanges a refresh token for a fresh access token.
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)

	// MarkAsRead clears the provider's unread flag.
	MarkAsRead(ctx context.Context, creds Credentials, id string) error

	// Watch sets up push notification for the mailbox. Callers fall back to
	// polling when this fails; an error here is advisory.
	Watch(ctx context.Context, creds Credentials, topic string) (*WatchHandle, error)
}

// RecentWindowQuery builds the provider query for "messages received since
// cutoff, still in the inbox". Gmail accepts epoch seconds in after: clauses.
func RecentWindowQuery(cutoff time.Time) string {
	return "in:inbox after:" + strconv.FormatInt(cutoff.Unix(), 10)
}
