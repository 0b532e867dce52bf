package listener

import (
	"context"
	"time"

	"fanhub/internal/event"
	"fanhub/internal/model"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// SubscriptionListener creates or extends a fan's subscription
type SubscriptionListener struct {
	subscriptions repository.SubscriptionRepository
	now           func() time.Time
}

// NewSubscriptionListener creates a subscription listener
func NewSubscriptionListener(subscriptions repository.SubscriptionRepository) *SubscriptionListener {
	return &SubscriptionListener{subscriptions: subscriptions, now: time.Now}
}

func (l *SubscriptionListener) subscription() subscription {
	return subscription{channel: event.ChannelTransaction, topic: TopicSubscription, handler: l.Handle}
}

// Handle applies subscription transactions
func (l *SubscriptionListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.PurchaseSucceeded && evt.Name != event.Refunded {
		return nil
	}
	p, ok := evt.Payload.(*event.TransactionPayload)
	if !ok || p.Type != model.TransactionTypeSubscription {
		return nil
	}

	if evt.Name == event.Refunded {
		if p.RefundOfID == nil {
			return nil
		}
		_, err := l.subscriptions.Revoke(ctx, *p.RefundOfID, l.now())
		return err
	}

	if p.ExpiresAt == nil {
		log.WithContext(ctx).WithField("transaction_id", p.TransactionID).Warn("Subscription transaction without expiry")
		return nil
	}
	applied, err := l.subscriptions.Apply(ctx, repository.SubscriptionGrant{
		UserID:           p.BuyerID,
		PerformerID:      p.TargetID,
		SubscriptionType: p.SubscriptionType,
		ExpiresAt:        *p.ExpiresAt,
		TransactionID:    p.TransactionID,
	})
	if err != nil {
		return err
	}
	if applied {
		log.WithContext(ctx).WithFields(log.Fields{
			"user_id":      p.BuyerID,
			"performer_id": p.TargetID,
			"expires_at":   p.ExpiresAt,
		}).Info("Subscription granted")
	}
	return nil
}
