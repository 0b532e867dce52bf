package listener

import (
	"context"
	"errors"
	"fmt"

	"fanhub/internal/event"
	"fanhub/internal/model"
	"fanhub/internal/repository"
	"fanhub/pkg/log"
)

// StockListener moves the stock of physical products on purchase and refund
type StockListener struct {
	products repository.ProductRepository
}

// NewStockListener creates a stock listener
func NewStockListener(products repository.ProductRepository) *StockListener {
	return &StockListener{products: products}
}

func (l *StockListener) subscription() subscription {
	return subscription{channel: event.ChannelTransaction, topic: TopicStock, handler: l.Handle}
}

// Handle applies one stock movement. The stock log makes a redelivered
// event a no-op.
func (l *StockListener) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Name != event.PurchaseSucceeded && evt.Name != event.Refunded {
		return nil
	}
	p, ok := evt.Payload.(*event.TransactionPayload)
	if !ok || p.Type != model.TransactionTypeProduct || p.ProductType != model.ProductTypePhysical {
		return nil
	}

	m := repository.StockMovement{
		ProductID:     p.TargetID,
		TransactionID: p.TransactionID,
		OperationType: model.OperationTypeDeduct,
		Quantity:      p.Quantity,
		Remark:        fmt.Sprintf("purchase %d", p.TransactionID),
	}
	if evt.Name == event.Refunded {
		if p.RefundOfID == nil {
			return nil
		}
		// keyed on the original so one purchase is reverted once
		m.TransactionID = *p.RefundOfID
		m.OperationType = model.OperationTypeRevert
		m.Remark = fmt.Sprintf("refund %d of %d", p.TransactionID, *p.RefundOfID)
	}

	entry, err := l.products.MoveStock(ctx, m)
	switch {
	case errors.Is(err, repository.ErrStockMovementApplied):
		log.WithContext(ctx).WithField("transaction_id", m.TransactionID).Debug("Stock movement already applied")
		return nil
	case errors.Is(err, repository.ErrInsufficientStock):
		// the sale stands; retrying cannot create stock
		log.WithContext(ctx).WithError(err).WithFields(log.Fields{
			"product_id":     m.ProductID,
			"transaction_id": m.TransactionID,
		}).Error("Product oversold, stock needs manual reconciliation")
		return nil
	case errors.Is(err, repository.ErrDeductPending):
		log.WithContext(ctx).WithField("transaction_id", m.TransactionID).Warn("Refund ahead of its stock deduction, retrying")
		return err
	case err != nil:
		return err
	}

	log.WithContext(ctx).WithFields(log.Fields{
		"product_id": entry.ProductID,
		"operation":  entry.GetOperationTypeName(),
		"before":     entry.BeforeStock,
		"after":      entry.AfterStock,
	}).Info("Stock moved")
	return nil
}
