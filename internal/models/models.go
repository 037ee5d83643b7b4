package models

import (
	"time"
)

// Account represents a connected mailbox plus the OAuth credentials needed to
// poll it. Tokens are refreshed in place by the checker before each cycle.
type Account struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	Email        string     `json:"email" db:"email"`
	Provider     string     `json:"provider" db:"provider"`
	AccessToken  string     `json:"-" db:"access_token"`
	RefreshToken *string    `json:"-" db:"refresh_token"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty" db:"token_expiry"`
	HistoryID    *uint64    `json:"history_id,omitempty" db:"history_id"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastChecked  *time.Time `json:"last_checked,omitempty" db:"last_checked"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// TokenExpired reports whether the stored access token is past its expiry.
// A missing expiry is treated as still valid; the provider will reject the
// token and the cycle surfaces the error instead.
func (a *Account) TokenExpired(now time.Time) bool {
	return a.TokenExpiry != nil && a.TokenExpiry.Before(now)
}

// RuleAction is what happens when a rule matches.
type RuleAction string

const (
	ActionAccept           RuleAction = "ACCEPT"
	ActionReject           RuleAction = "REJECT"
	ActionForward          RuleAction = "FORWARD"
	ActionSendConfirmation RuleAction = "SEND_CONFIRMATION"
)

// Rule binds a condition set and an action to one mailbox account.
type Rule struct {
	ID          string `json:"id" db:"id"`
	AccountID   string `json:"account_id" db:"account_id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// RawConditions is the stored JSON payload; Conditions is the parsed form.
	// Parsing happens once at load time (see Conditions.Parse), never per
	// evaluation. A payload that fails to parse yields zero conditions, and a
	// rule with zero conditions never matches.
	RawConditions string     `json:"-" db:"conditions"`
	Conditions    Conditions `json:"conditions" db:"-"`

	Logic    RuleLogic  `json:"logic" db:"logic"`
	Priority int        `json:"priority" db:"priority"`
	Action   RuleAction `json:"action" db:"action"`

	ForwardTo           *string `json:"forward_to,omitempty" db:"forward_to"`
	ConfirmationSubject string  `json:"confirmation_subject" db:"confirmation_subject"`
	ConfirmationBody    string  `json:"confirmation_body" db:"confirmation_body"`

	AutoAccept bool `json:"auto_accept" db:"auto_accept"`
	MarkAsRead bool `json:"mark_as_read" db:"mark_as_read"`
	IsActive   bool `json:"is_active" db:"is_active"`

	MatchCount   int        `json:"match_count" db:"match_count"`
	SuccessCount int        `json:"success_count" db:"success_count"`
	FailureCount int        `json:"failure_count" db:"failure_count"`
	LastMatched  *time.Time `json:"last_matched,omitempty" db:"last_matched"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the invariants that must hold before a rule is stored.
func (r *Rule) Validate() error {
	if r.AccountID == "" {
		return ErrRuleAccountRequired
	}
	if r.Name == "" {
		return ErrRuleNameRequired
	}
	switch r.Action {
	case ActionAccept, ActionReject, ActionForward, ActionSendConfirmation:
	default:
		return ErrRuleUnknownAction
	}
	if r.Action == ActionSendConfirmation {
		if r.ConfirmationSubject == "" || r.ConfirmationBody == "" {
			return ErrRuleConfirmationTemplates
		}
	}
	return nil
}

// ProcessingStatus is the lifecycle state of a ProcessedEmail record.
//
//	PENDING -> PROCESSING -> ACCEPTED            success
//	PENDING -> PROCESSING -> PENDING             retryable failure
//	PENDING -> PROCESSING -> FAILED              retry budget exhausted
//	PENDING -> SKIPPED                           no link or no rule
//
// ACCEPTED, FAILED and SKIPPED are terminal. Re-processing an ACCEPTED record
// is an explicit no-op.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusAccepted   ProcessingStatus = "ACCEPTED"
	StatusFailed     ProcessingStatus = "FAILED"
	StatusSkipped    ProcessingStatus = "SKIPPED"
)

// Terminal reports whether a status permits no further transitions.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusFailed || s == StatusSkipped
}

// MaxOrderRetries is the record-level retry budget. It is independent of the
// in-process HTTP retry inside the acceptance call.
const MaxOrderRetries = 3

// ProcessedEmail is the durable record that a message from an account has been
// evaluated. The (AccountID, MessageID) pair is unique; creating it is an
// atomic conditional insert and the sole dedup mechanism between the poller
// and the batch checker.
type ProcessedEmail struct {
	ID          string           `json:"id" db:"id"`
	AccountID   string           `json:"account_id" db:"account_id"`
	MessageID   string           `json:"message_id" db:"message_id"`
	RuleID      *string          `json:"rule_id,omitempty" db:"rule_id"`
	ThreadID    string           `json:"thread_id" db:"thread_id"`
	Subject     string           `json:"subject" db:"subject"`
	From        string           `json:"from" db:"from_address"`
	To          string           `json:"to" db:"to_address"`
	BodyPreview string           `json:"body_preview" db:"body_preview"`
	AcceptLink  *string          `json:"accept_link,omitempty" db:"accept_link"`
	Status      ProcessingStatus `json:"status" db:"status"`
	RetryCount  int              `json:"retry_count" db:"retry_count"`
	Error       *string          `json:"error,omitempty" db:"error"`
	ReceivedAt  time.Time        `json:"received_at" db:"received_at"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty" db:"accepted_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// ActivityType classifies audit-trail entries.
type ActivityType string

const (
	ActivityEmailReceived    ActivityType = "EMAIL_RECEIVED"
	ActivityRuleMatched      ActivityType = "RULE_MATCHED"
	ActivityOrderAccepted    ActivityType = "ORDER_ACCEPTED"
	ActivityOrderFailed      ActivityType = "ORDER_FAILED"
	ActivityConfirmationSent ActivityType = "CONFIRMATION_SENT"
	ActivityAccountError     ActivityType = "ACCOUNT_ERROR"
)

// ActivityLog is an append-only audit entry. The engine only ever writes
// these; reading them back is a reporting concern.
type ActivityLog struct {
	ID               string         `json:"id" db:"id"`
	UserID           string         `json:"user_id" db:"user_id"`
	AccountID        string         `json:"account_id" db:"account_id"`
	ProcessedEmailID *string        `json:"processed_email_id,omitempty" db:"processed_email_id"`
	Type             ActivityType   `json:"type" db:"type"`
	Title            string         `json:"title" db:"title"`
	Description      string         `json:"description" db:"description"`
	Metadata         map[string]any `json:"metadata,omitempty" db:"-"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// SystemStatus is a heartbeat row maintained per worker process.
type SystemStatus struct {
	ServiceName string    `json:"service_name" db:"service_name"`
	IsHealthy   bool      `json:"is_healthy" db:"is_healthy"`
	LastCheck   time.Time `json:"last_check" db:"last_check"`
}
