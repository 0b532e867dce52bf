// Package listener holds the side-effect handlers of the event bus. Each
// listener owns one slice of derived state and never calls the settlement
// engine or another listener.
package listener

import (
	"context"
	"fmt"

	"fanhub/internal/eventbus"
	"fanhub/internal/notification"
	"fanhub/internal/realtime"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// Topics, one delivery cursor per listener
const (
	TopicStock               = "stock-adjustment"
	TopicPurchaseRecord      = "purchase-record"
	TopicSubscription        = "subscription-grant"
	TopicReactionCounter     = "reaction-counter"
	TopicPayoutCompletion    = "payout-completion"
	TopicAccountVerification = "account-verification"
	TopicCategoryCascade     = "category-cascade"
	TopicDisconnectCleanup   = "disconnect-cleanup"
)

// Subscriber is the subscribing half of the bus
type Subscriber interface {
	Subscribe(channel, topic string, handler eventbus.Handler) error
}

// Claimer remembers which side effects already ran
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RoomRegistry is the socket room store used on disconnect
type RoomRegistry interface {
	LeaveAll(ctx context.Context, a realtime.Actor) ([]string, error)
	Broadcast(ctx context.Context, msg *realtime.SystemMessage) error
}

// Dependencies of every listener
type Dependencies struct {
	Products      repository.ProductRepository
	Purchases     repository.PurchasedItemRepository
	Subscriptions repository.SubscriptionRepository
	Catalog       repository.CatalogRepository
	Performers    repository.PerformerRepository
	Payouts       repository.PayoutRepository
	Dedupe        Claimer
	Mailer        notification.Mailer
	Rooms         RoomRegistry

	// CategoryBatchSize bounds the rows locked per category cascade step
	CategoryBatchSize int
}

type subscription struct {
	channel string
	topic   string
	handler eventbus.Handler
}

// Register subscribes every listener to the bus
func Register(bus Subscriber, deps Dependencies) error {
	stock := NewStockListener(deps.Products)
	purchases := NewPurchaseRecordListener(deps.Purchases)
	subscriptions := NewSubscriptionListener(deps.Subscriptions)
	reactions := NewReactionListener(deps.Catalog, deps.Performers, deps.Dedupe, deps.Mailer)
	payouts := NewPayoutListener(deps.Payouts, deps.Performers, deps.Mailer)
	verification := NewVerificationListener(deps.Performers, deps.Dedupe, deps.Mailer)
	categories := NewCategoryListener(deps.Performers, deps.CategoryBatchSize)
	disconnects := NewDisconnectListener(deps.Rooms, deps.Catalog, deps.Performers)

	subs := []subscription{
		stock.subscription(),
		purchases.subscription(),
		subscriptions.subscription(),
		reactions.subscription(),
		payouts.subscription(),
		verification.subscription(),
		categories.subscription(),
		disconnects.subscription(),
	}
	for _, s := range subs {
		if err := bus.Subscribe(s.channel, s.topic, s.handler); err != nil {
			return fmt.Errorf("subscribe %s/%s: %w", s.channel, s.topic, err)
		}
		log.WithFields(log.Fields{
			"channel": s.channel,
			"topic":   s.topic,
		}).Debug("Listener registered")
	}
	return nil
}

// sendBestEffort mails msg and only logs a failure
func sendBestEffort(ctx context.Context, mailer notification.Mailer, msg *notification.Message) bool {
	if mailer == nil || msg.To == "" {
		return false
	}
	if err := mailer.Send(ctx, msg); err != nil {
		log.WithContext(ctx).WithError(err).WithFields(log.Fields{
			"to":       msg.To,
			"template": msg.Template,
		}).Warn("Notification email not sent")
		return false
	}
	return true
}
