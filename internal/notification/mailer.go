// Package notification sends best-effort emails on behalf of listeners
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fanhub/pkg/breaker"
	"fanhub/pkg/log"
)

// Templates
const (
	TemplateNewReaction     = "new-reaction"
	TemplatePayoutCompleted = "payout-completed"
	TemplateAccountVerified = "account-verified"
)

// ErrNoRecipient is returned for messages without an address
var ErrNoRecipient = errors.New("message has no recipient")

// Message is one outbound email
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]interface{}
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// LogMailer writes messages to the log instead of a mail gateway
type LogMailer struct {
	From string
}

// Send logs the message
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	log.WithContext(ctx).WithFields(log.Fields{
		"from":     m.From,
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
	}).Info("Email sent")
	return nil
}

// BreakerMailer guards another mailer with a circuit breaker and a per
// message timeout
type BreakerMailer struct {
	next    Mailer
	breaker *breaker.CircuitBreaker
	timeout time.Duration
}

// NewBreakerMailer wraps next
func NewBreakerMailer(next Mailer, cb *breaker.CircuitBreaker, timeout time.Duration) *BreakerMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BreakerMailer{next: next, breaker: cb, timeout: timeout}
}

// Send delivers msg unless the breaker is open
func (m *BreakerMailer) Send(ctx context.Context, msg *Message) error {
	err := m.breaker.Execute(ctx, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.next.Send(sendCtx, msg)
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Template, msg.To, err)
	}
	return nil
}

// NopMailer drops every message
type NopMailer struct{}

// Send does nothing
func (NopMailer) Send(context.Context, *Message) error { return nil }
