// Package engine ties matching, templating and acceptance into the two
// pipelines the worker runs: inbox checking and order processing.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/inboxpilot/inboxpilot/internal/mailbox"
	"github.com/inboxpilot/inboxpilot/internal/models"
	"github.com/inboxpilot/inboxpilot/internal/template"
)

// ReplySender is the slice of the mailbox client the executor needs.
type ReplySender interface {
	SendReply(ctx context.Context, creds mailbox.Credentials, threadID, to, subject, body string) (string, error)
}

// Executor carries out a matched rule's action against one message.
type Executor struct {
	mail   ReplySender
	logger *log.Logger
}

// NewExecutor builds an action executor.
func NewExecutor(mail ReplySender) *Executor {
	return &Executor{
		mail:   mail,
		logger: log.New(os.Stdout, "[EXECUTOR] ", log.LstdFlags),
	}
}

// Execute performs the rule's action. ACCEPT, REJECT and FORWARD record the
// decision and succeed; order acceptance itself runs later on the processing
// queue. SEND_CONFIRMATION sends a threaded reply, and a send failure is the
// caller's to handle.
func (e *Executor) Execute(ctx context.Context, account *models.Account, rule *models.Rule, email *mailbox.ParsedMessage) error {
	switch rule.Action {
	case models.ActionAccept:
		e.logger.Printf("rule %s accepted message %s", rule.Name, email.ID)
		return nil
	case models.ActionReject:
		e.logger.Printf("rule %s rejected message %s", rule.Name, email.ID)
		return nil
	case models.ActionForward:
		to := ""
		if rule.ForwardTo != nil {
			to = *rule.ForwardTo
		}
		e.logger.Printf("rule %s forwards message %s to %s", rule.Name, email.ID, to)
		return nil
	case models.ActionSendConfirmation:
		return e.sendConfirmation(ctx, account, rule, email)
	default:
		return fmt.Errorf("unknown rule action %q", rule.Action)
	}
}

func (e *Executor) sendConfirmation(ctx context.Context, account *models.Account, rule *models.Rule, email *mailbox.ParsedMessage) error {
	subjectTmpl := rule.ConfirmationSubject
	if subjectTmpl == "" {
		subjectTmpl = template.DefaultConfirmationSubject
	}
	bodyTmpl := rule.ConfirmationBody
	if bodyTmpl == "" {
		bodyTmpl = template.DefaultConfirmationBody
	}

	facts := template.ExtractOrderFacts(email.Subject, email.Body)
	name := template.CustomerName(email.From)
	addr := template.CustomerEmail(email.From)
	if addr == "" {
		return fmt.Errorf("no reply address on message %s", email.ID)
	}

	subject := template.Render(subjectTmpl, facts, name, addr, email.Subject)
	body := template.Render(bodyTmpl, facts, name, addr, email.Subject)

	creds := mailbox.Credentials{AccessToken: account.AccessToken}
	if _, err := e.mail.SendReply(ctx, creds, email.ThreadID, addr, subject, body); err != nil {
		return fmt.Errorf("failed to send confirmation for message %s: %w", email.ID, err)
	}
	e.logger.Printf("sent confirmation to %s for message %s", addr, email.ID)
	return nil
}
