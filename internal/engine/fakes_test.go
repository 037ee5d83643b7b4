package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/orders"
	"github.com/inboxpilot/inboxpilot/internal/queue"
	"github.com/inboxpilot/inboxpilot/internal/repository"
)

type fakeAccounts struct {
	account        *models.Account
	tokensUpdated  bool
	newAccessToken string
	lastChecked    bool
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeAccounts) UpdateTokens(ctx context.Context, id, accessToken string, expiry time.Time) error {
	f.tokensUpdated = true
	f.newAccessToken = accessToken
	return nil
}

func (f *fakeAccounts) UpdateLastChecked(ctx context.Context, id string) error {
	f.lastChecked = true
	return nil
}

type fakeRules struct {
	active    []*models.Rule
	matches   []string
	successes []string
	failures  []string
}

func (f *fakeRules) ListActiveByAccount(ctx context.Context, accountID string) ([]*models.Rule, error) {
	return f.active, nil
}

func (f *fakeRules) IncrementMatch(ctx context.Context, id string) error {
	f.matches = append(f.matches, id)
	return nil
}

func (f *fakeRules) IncrementSuccess(ctx context.Context, id string) error {
	f.successes = append(f.successes, id)
	return nil
}

func (f *fakeRules) IncrementFailure(ctx context.Context, id string) error {
	f.failures = append(f.failures, id)
	return nil
}

type fakeRecords struct {
	mu       sync.Mutex
	existing map[string]*models.ProcessedEmail
	created  []*models.ProcessedEmail
	statuses []models.ProcessingStatus
	accepted []string
	failures []failureCall
	skipped  []string
}

type failureCall struct {
	id     string
	retry  int
	status models.ProcessingStatus
	errMsg string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{existing: make(map[string]*models.ProcessedEmail)}
}

func recordKey(accountID, messageID string) string {
	return accountID + "/" + messageID
}

func (f *fakeRecords) Create(ctx context.Context, rec *models.ProcessedEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(rec.AccountID, rec.MessageID)
	if _, ok := f.existing[key]; ok {
		return repository.ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("rec-%d", len(f.existing)+1)
	}
	f.existing[key] = rec
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeRecords) GetByMessageID(ctx context.Context, accountID, messageID string) (*models.ProcessedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.existing[recordKey(accountID, messageID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecords) UpdateStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRecords) MarkAccepted(ctx context.Context, id string) error {
	f.accepted = append(f.accepted, id)
	return nil
}

func (f *fakeRecords) MarkFailure(ctx context.Context, id string, retryCount int, status models.ProcessingStatus, errText string) error {
	f.failures = append(f.failures, failureCall{id: id, retry: retryCount, status: status, errMsg: errText})
	return nil
}

func (f *fakeRecords) MarkSkipped(ctx context.Context, id, reason string) error {
	f.skipped = append(f.skipped, id)
	return nil
}

type fakeActivity struct {
	entries []*models.ActivityLog
}

func (f *fakeActivity) Append(ctx context.Context, entry *models.ActivityLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMailbox struct {
	refs       []mailbox.MessageRef
	messages   map[string]*mailbox.ParsedMessage
	refreshed  *mailbox.Token
	refreshErr error
	markedRead []string
	replies    []sentReply
	replyErr   error
}

type sentReply struct {
	to, subject, body, threadID string
}

func (f *fakeMailbox) ListRecent(ctx context.Context, creds mailbox.Credentials, query string, max int64) ([]mailbox.MessageRef, error) {
	return f.refs, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, creds mailbox.Credentials, id string) (*mailbox.ParsedMessage, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return msg, nil
}

func (f *fakeMailbox) SendReply(ctx context.Context, creds mailbox.Credentials, threadID, to, subject, body string) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.replies = append(f.replies, sentReply{to: to, subject: subject, body: body, threadID: threadID})
	return "sent-1", nil
}

func (f *fakeMailbox) RefreshToken(ctx context.Context, refreshToken string) (*mailbox.Token, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeMailbox) MarkAsRead(ctx context.Context, creds mailbox.Credentials, id string) error {
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeMailbox) Watch(ctx context.Context, creds mailbox.Credentials, topic string) (*mailbox.WatchHandle, error) {
	return &mailbox.WatchHandle{}, nil
}

type fakeQueue struct {
	jobs []enqueuedJob
	err  error
}

type enqueuedJob struct {
	queue   string
	payload any
	dedup   string
}

func (f *fakeQueue) Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) error {
	if f.err != nil {
		return f.err
	}
	job, err := queue.NewJob(queueName, payload, opts...)
	if err != nil {
		return err
	}
	f.jobs = append(f.jobs, enqueuedJob{queue: queueName, payload: payload, dedup: job.DedupKey})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	name    string
	payload any
}

func (f *fakePublisher) Publish(name string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{name: name, payload: payload})
}

func (f *fakePublisher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.name
	}
	return out
}

type fakeAcceptor struct {
	result orders.Result
	calls  int
	links  []string
}

func (f *fakeAcceptor) AcceptOrder(ctx context.Context, link string) orders.Result {
	f.calls++
	f.links = append(f.links, link)
	return f.result
}
