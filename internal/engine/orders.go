package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/inboxpilot/inboxpilot/internal/events"
	"github.com/inboxpilot/inboxpilot/internal/metrics"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/orders"
	"github.com/inboxpilot/inboxpilot/internal/queue"
	"github.com/inboxpilot/inboxpilot/internal/repository"
)

// orderAcceptor is implemented by orders.Acceptor.
type orderAcceptor interface {
	AcceptOrder(ctx context.Context, link string) orders.Result
}

// OrderProcessJob is the payload carried on the process-order queue.
type OrderProcessJob struct {
	AccountID string `json:"account_id"`
	MessageID string `json:"message_id"`
}

// OrderProcessor drives a processing record through acceptance.
type OrderProcessor struct {
	accounts accountStore
	rules    ruleStore
	records  recordStore
	activity activityStore
	acceptor orderAcceptor
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewOrderProcessor wires the acceptance pipeline.
func NewOrderProcessor(
	accounts *repository.AccountRepository,
	ruleRepo *repository.RuleRepository,
	records *repository.ProcessedEmailRepository,
	activity *repository.ActivityLogRepository,
	acceptor *orders.Acceptor,
	publisher events.Publisher,
	m *metrics.Metrics,
) *OrderProcessor {
	return &OrderProcessor{
		accounts: accounts,
		rules:    ruleRepo,
		records:  records,
		activity: activity,
		acceptor: acceptor,
		events:   publisher,
		metrics:  m,
		logger:   log.New(os.Stdout, "[ORDERS] ", log.LstdFlags),
	}
}

// ProcessOrder executes acceptance for one record.
//
// An ACCEPTED record is a no-op: the status is checked before any transition
// so redelivered jobs never re-accept or touch counters. A missing accept
// link parks the record as SKIPPED. Otherwise the record moves to PROCESSING,
// the link is followed, and the outcome lands as ACCEPTED, or as a retry
// (PENDING with retry_count bumped, error returned so the queue redelivers),
// or as FAILED once the retry budget is spent.
func (p *OrderProcessor) ProcessOrder(ctx context.Context, accountID, messageID string) error {
	rec, err := p.records.GetByMessageID(ctx, accountID, messageID)
	if err != nil {
		return fmt.Errorf("failed to load record for message %s: %w", messageID, err)
	}

	if rec.Status.Terminal() {
		if rec.Status == models.StatusAccepted {
			p.logger.Printf("order for message %s already accepted, skipping", messageID)
		}
		return nil
	}

	if rec.AcceptLink == nil || *rec.AcceptLink == "" {
		if err := p.records.MarkSkipped(ctx, rec.ID, "no accept link found in email"); err != nil {
			return fmt.Errorf("failed to skip record %s: %w", rec.ID, err)
		}
		return nil
	}

	if err := p.records.UpdateStatus(ctx, rec.ID, models.StatusProcessing); err != nil {
		return fmt.Errorf("failed to move record %s to processing: %w", rec.ID, err)
	}
	p.events.Publish(events.OrderProcessing, map[string]any{
		"account_id": accountID,
		"message_id": messageID,
		"record_id":  rec.ID,
	})

	res := p.acceptor.AcceptOrder(ctx, *rec.AcceptLink)
	p.metrics.AcceptLatency.Observe(res.ResponseTime.Seconds())

	if res.Success {
		return p.finishAccepted(ctx, rec, res)
	}
	return p.finishFailed(ctx, rec, res)
}

func (p *OrderProcessor) finishAccepted(ctx context.Context, rec *models.ProcessedEmail, res orders.Result) error {
	if err := p.records.MarkAccepted(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to mark record %s accepted: %w", rec.ID, err)
	}
	if rec.RuleID != nil {
		if err := p.rules.IncrementSuccess(ctx, *rec.RuleID); err != nil {
			p.logger.Printf("failed to bump success count for rule %s: %v", *rec.RuleID, err)
		}
	}
	p.metrics.OrdersAccepted.Inc()
	p.appendActivity(ctx, rec, models.ActivityOrderAccepted,
		"Order accepted",
		fmt.Sprintf("Accepted %q in %s after %d attempt(s)", rec.Subject, res.ResponseTime, res.Attempts))
	p.events.Publish(events.OrderAccepted, map[string]any{
		"account_id": rec.AccountID,
		"message_id": rec.MessageID,
		"record_id":  rec.ID,
		"status":     res.StatusCode,
	})
	p.logger.Printf("accepted order for message %s (HTTP %d, %d attempts)",
		rec.MessageID, res.StatusCode, res.Attempts)
	return nil
}

func (p *OrderProcessor) finishFailed(ctx context.Context, rec *models.ProcessedEmail, res orders.Result) error {
	errText := fmt.Sprintf("acceptance returned HTTP %d", res.StatusCode)
	if res.Err != nil {
		errText = res.Err.Error()
	}

	retry := rec.RetryCount + 1
	status := models.StatusPending
	if retry >= models.MaxOrderRetries {
		status = models.StatusFailed
	}
	if err := p.records.MarkFailure(ctx, rec.ID, retry, status, errText); err != nil {
		return fmt.Errorf("failed to record failure on %s: %w", rec.ID, err)
	}

	if status == models.StatusFailed {
		if rec.RuleID != nil {
			if err := p.rules.IncrementFailure(ctx, *rec.RuleID); err != nil {
				p.logger.Printf("failed to bump failure count for rule %s: %v", *rec.RuleID, err)
			}
		}
		p.metrics.OrdersFailed.Inc()
		p.appendActivity(ctx, rec, models.ActivityOrderFailed,
			"Order failed",
			fmt.Sprintf("Gave up on %q after %d tries: %s", rec.Subject, retry, errText))
		p.events.Publish(events.OrderFailed, map[string]any{
			"account_id": rec.AccountID,
			"message_id": rec.MessageID,
			"record_id":  rec.ID,
			"error":      errText,
		})
		p.logger.Printf("order for message %s failed permanently: %s", rec.MessageID, errText)
		return nil
	}

	p.metrics.OrderRetries.Inc()
	p.appendActivity(ctx, rec, models.ActivityOrderFailed,
		"Order attempt failed",
		fmt.Sprintf("Attempt %d/%d on %q failed: %s", retry, models.MaxOrderRetries, rec.Subject, errText))
	p.events.Publish(events.OrderFailed, map[string]any{
		"account_id": rec.AccountID,
		"message_id": rec.MessageID,
		"record_id":  rec.ID,
		"error":      errText,
		"will_retry": true,
	})
	return fmt.Errorf("order acceptance failed for message %s (attempt %d/%d): %s",
		rec.MessageID, retry, models.MaxOrderRetries, errText)
}

func (p *OrderProcessor) appendActivity(ctx context.Context, rec *models.ProcessedEmail, typ models.ActivityType, title, desc string) {
	account, err := p.accounts.GetByID(ctx, rec.AccountID)
	userID := ""
	if err == nil {
		userID = account.UserID
	}
	entry := &models.ActivityLog{
		UserID:           userID,
		AccountID:        rec.AccountID,
		ProcessedEmailID: &rec.ID,
		Type:             typ,
		Title:            title,
		Description:      desc,
	}
	if err := p.activity.Append(ctx, entry); err != nil {
		p.logger.Printf("failed to append activity log: %v", err)
	}
}

// Handler adapts the processor to the process-order queue.
func (p *OrderProcessor) Handler() queue.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var job OrderProcessJob
		if err := unmarshalJob(payload, &job); err != nil {
			return err
		}
		return p.ProcessOrder(ctx, job.AccountID, job.MessageID)
	}
}

func unmarshalJob(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode job payload: %w", err)
	}
	return nil
}
