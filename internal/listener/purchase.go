package listener

import (
	"context"

	"fanhub/internal/event"
	"fanhub/internal/model"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// PurchaseRecordListener keeps the (buyer, target) purchased flags
type PurchaseRecordListener struct {
	purchases repository.PurchasedItemRepository
}

// NewPurchaseRecordListener creates a purchase record listener
func NewPurchaseRecordListener(purchases repository.PurchasedItemRepository) *PurchaseRecordListener {
	return &PurchaseRecordListener{purchases: purchases}
}

func (l *PurchaseRecordListener) subscription() subscription {
	return subscription{channel: event.ChannelTransaction, topic: TopicPurchaseRecord, handler: l.Handle}
}

// Handle grants access on success and takes it back on refund
func (l *PurchaseRecordListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.PurchaseSucceeded && evt.Name != event.Refunded {
		return nil
	}
	p, ok := evt.Payload.(*event.TransactionPayload)
	if !ok || p.Type == model.TransactionTypeSubscription || model.Repeatable(p.Type, p.ProductType) {
		return nil
	}

	if evt.Name == event.Refunded {
		if p.RefundOfID == nil {
			return nil
		}
		n, err := l.purchases.Revoke(ctx, *p.RefundOfID)
		if err != nil {
			return err
		}
		log.WithContext(ctx).WithFields(log.Fields{
			"transaction_id": *p.RefundOfID,
			"revoked":        n,
		}).Info("Purchase revoked")
		return nil
	}

	return l.purchases.Grant(ctx, &model.PurchasedItem{
		BuyerID:       p.BuyerID,
		TargetType:    p.Type,
		TargetID:      p.TargetID,
		TransactionID: p.TransactionID,
	})
}
