package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/events"
	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/queue"
	"github.com/inboxpilot/inboxpilot/internal/repository"
	"github.com/inboxpilot/inboxpilot/internal/rules"
)

// Store contracts, scoped to what the checker consumes.

type accountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateTokens(ctx context.Context, id, accessToken string, expiry time.Time) error
	UpdateLastChecked(ctx context.Context, id string) error
}

type ruleStore interface {
	ListActiveByAccount(ctx context.Context, accountID string) ([]*models.Rule, error)
	IncrementMatch(ctx context.Context, id string) error
	IncrementSuccess(ctx context.Context, id string) error
	IncrementFailure(ctx context.Context, id string) error
}

type recordStore interface {
	Create(ctx context.Context, rec *models.ProcessedEmail) error
	GetByMessageID(ctx context.Context, accountID, messageID string) (*models.ProcessedEmail, error)
	UpdateStatus(ctx context.Context, id string, status models.ProcessingStatus) error
	MarkAccepted(ctx context.Context, id string) error
	MarkFailure(ctx context.Context, id string, retryCount int, status models.ProcessingStatus, errText string) error
	MarkSkipped(ctx context.Context, id, reason string) error
}

type activityStore interface {
	Append(ctx context.Context, entry *models.ActivityLog) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) error
}

// actionExecutor is implemented by Executor.
type actionExecutor interface {
	Execute(ctx context.Context, account *models.Account, rule *models.Rule, email *mailbox.ParsedMessage) error
}

const (
	// recentWindow bounds the inbox query. Overlapping windows are safe;
	// record creation dedups anything seen twice.
	recentWindow = 5 * time.Minute

	maxListBatch = 50
)

// CheckStats summarizes one account cycle.
type CheckStats struct {
	Scanned    int
	Matched    int
	Skipped    int
	Duplicates int
}

// Checker runs the inbox ingestion pipeline for one account at a time.
type Checker struct {
	accounts accountStore
	rules    ruleStore
	records  recordStore
	activity activityStore
	mail     mailbox.Client
	executor actionExecutor
	queue    enqueuer
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *log.Logger
	now      func() time.Time
}

// NewChecker wires the ingestion pipeline.
func NewChecker(
	accounts *repository.AccountRepository,
	ruleRepo *repository.RuleRepository,
	records *repository.ProcessedEmailRepository,
	activity *repository.ActivityLogRepository,
	mail mailbox.Client,
	executor *Executor,
	dispatcher queue.Dispatcher,
	publisher events.Publisher,
	m *metrics.Metrics,
) *Checker {
	return &Checker{
		accounts: accounts,
		rules:    ruleRepo,
		records:  records,
		activity: activity,
		mail:     mail,
		executor: executor,
		queue:    dispatcher,
		events:   publisher,
		metrics:  m,
		logger:   log.New(os.Stdout, "[CHECKER] ", log.LstdFlags),
		now:      time.Now,
	}
}

// EmailCheckJob is the payload carried on the email-check queue.
type EmailCheckJob struct {
	AccountID string `json:"account_id"`
}

// CheckAccount polls one account's inbox and records every new message.
// Per-message failures are logged and skipped so one bad message cannot
// stall the rest of the batch.
func (c *Checker) CheckAccount(ctx context.Context, accountID string) (CheckStats, error) {
	var stats CheckStats

	account, err := c.accounts.GetByID(ctx, accountID)
	if err != nil {
		return stats, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}
	if !account.IsActive {
		c.logger.Printf("account %s is inactive, skipping", account.Email)
		return stats, nil
	}

	if account.TokenExpired(c.now()) {
		if err := c.refreshToken(ctx, account); err != nil {
			c.recordAccountError(ctx, account, err)
			return stats, err
		}
	}

	creds := mailbox.Credentials{AccessToken: account.AccessToken}
	query := mailbox.RecentWindowQuery(c.now().Add(-recentWindow))
	refs, err := c.mail.ListRecent(ctx, creds, query, maxListBatch)
	if err != nil {
		c.metrics.MailboxErrors.Inc()
		c.recordAccountError(ctx, account, err)
		return stats, fmt.Errorf("failed to list inbox for %s: %w", account.Email, err)
	}

	if err := c.accounts.UpdateLastChecked(ctx, account.ID); err != nil {
		c.logger.Printf("failed to update last_checked for %s: %v", account.Email, err)
	}
	if len(refs) == 0 {
		return stats, nil
	}

	ruleset, err := c.rules.ListActiveByAccount(ctx, account.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to load rules for %s: %w", account.Email, err)
	}

	for _, ref := range refs {
		stats.Scanned++
		c.metrics.EmailsScanned.Inc()
		if err := c.processMessage(ctx, account, creds, ruleset, ref.ID, &stats); err != nil {
			c.logger.Printf("failed to process message %s on %s: %v", ref.ID, account.Email, err)
		}
	}

	c.logger.Printf("checked %s: scanned=%d matched=%d skipped=%d duplicate=%d",
		account.Email, stats.Scanned, stats.Matched, stats.Skipped, stats.Duplicates)
	return stats, nil
}

func (c *Checker) refreshToken(ctx context.Context, account *models.Account) error {
	if account.RefreshToken == nil || *account.RefreshToken == "" {
		return fmt.Errorf("account %s has an expired token and no refresh token", account.Email)
	}
	token, err := c.mail.RefreshToken(ctx, *account.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token for %s: %w", account.Email, err)
	}
	if err := c.accounts.UpdateTokens(ctx, account.ID, token.AccessToken, token.Expiry); err != nil {
		return fmt.Errorf("failed to store refreshed token for %s: %w", account.Email, err)
	}
	account.AccessToken = token.AccessToken
	account.TokenExpiry = &token.Expiry
	return nil
}

func (c *Checker) processMessage(ctx context.Context, account *models.Account, creds mailbox.Credentials, ruleset []*models.Rule, messageID string, stats *CheckStats) error {
	msg, err := c.mail.GetMessage(ctx, creds, messageID)
	if err != nil {
		c.metrics.MailboxErrors.Inc()
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	rule := rules.SelectRule(msg, ruleset)

	rec := &models.ProcessedEmail{
		AccountID:   account.ID,
		MessageID:   msg.ID,
		ThreadID:    msg.ThreadID,
		Subject:     msg.Subject,
		From:        msg.From,
		To:          strings.Join(msg.To, ", "),
		BodyPreview: msg.BodyPreview,
		ReceivedAt:  msg.Date,
	}
	if rule == nil {
		rec.Status = models.StatusSkipped
	} else {
		rec.RuleID = &rule.ID
		// Without a link the record is terminal at birth: no job will ever
		// pick it up, so PENDING would strand it.
		rec.Status = models.StatusSkipped
		if link := rules.ExtractAcceptLink(msg.Body, nil); link != "" {
			rec.AcceptLink = &link
			rec.Status = models.StatusPending
		}
	}

	// The conditional insert is the dedup point: the poller and the sweep
	// can both see the same message, only one record ever exists.
	if err := c.records.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			stats.Duplicates++
			c.metrics.DuplicatesSeen.Inc()
			return nil
		}
		return fmt.Errorf("failed to record message: %w", err)
	}

	if rule == nil {
		stats.Skipped++
		c.metrics.EmailsSkipped.Inc()
		return nil
	}

	stats.Matched++
	c.metrics.EmailsMatched.Inc()
	if err := c.rules.IncrementMatch(ctx, rule.ID); err != nil {
		c.logger.Printf("failed to bump match count for rule %s: %v", rule.ID, err)
	}
	c.appendActivity(ctx, account, &rec.ID, models.ActivityRuleMatched,
		fmt.Sprintf("Rule %q matched", rule.Name),
		fmt.Sprintf("Message %q from %s", msg.Subject, msg.From),
		map[string]any{"rule_id": rule.ID, "message_id": msg.ID})
	c.events.Publish(events.EmailMatched, map[string]any{
		"account_id": account.ID,
		"message_id": msg.ID,
		"rule_id":    rule.ID,
		"subject":    msg.Subject,
	})

	if rule.MarkAsRead {
		if err := c.mail.MarkAsRead(ctx, creds, msg.ID); err != nil {
			c.logger.Printf("failed to mark message %s as read: %v", msg.ID, err)
		}
	}

	if err := c.executor.Execute(ctx, account, rule, msg); err != nil {
		c.logger.Printf("action %s failed for message %s: %v", rule.Action, msg.ID, err)
	} else if rule.Action == models.ActionSendConfirmation {
		c.appendActivity(ctx, account, &rec.ID, models.ActivityConfirmationSent,
			"Confirmation sent",
			fmt.Sprintf("Replied to %s", msg.From),
			map[string]any{"message_id": msg.ID})
	}

	if rule.AutoAccept && rec.AcceptLink != nil {
		job := OrderProcessJob{AccountID: account.ID, MessageID: msg.ID}
		err := c.queue.Enqueue(ctx, queue.QueueOrderProcess, job,
			queue.WithDedupKey("process-"+msg.ID))
		if err != nil {
			return fmt.Errorf("failed to enqueue order processing: %w", err)
		}
	}
	return nil
}

func (c *Checker) appendActivity(ctx context.Context, account *models.Account, recordID *string, typ models.ActivityType, title, desc string, meta map[string]any) {
	entry := &models.ActivityLog{
		UserID:           account.UserID,
		AccountID:        account.ID,
		ProcessedEmailID: recordID,
		Type:             typ,
		Title:            title,
		Description:      desc,
		Metadata:         meta,
	}
	if err := c.activity.Append(ctx, entry); err != nil {
		c.logger.Printf("failed to append activity log: %v", err)
	}
}

func (c *Checker) recordAccountError(ctx context.Context, account *models.Account, cause error) {
	c.appendActivity(ctx, account, nil, models.ActivityAccountError,
		"Account check failed", cause.Error(), nil)
}

// Handler adapts the checker to the email-check queue.
func (c *Checker) Handler() queue.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var job EmailCheckJob
		if err := unmarshalJob(payload, &job); err != nil {
			return err
		}
		_, err := c.CheckAccount(ctx, job.AccountID)
		return err
	}
}
