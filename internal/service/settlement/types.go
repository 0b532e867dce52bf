package settlement

import (
	"time"

	"fanhub/internal/model"
)

// Tip contexts
const (
	TipContextStream       = "stream"
	TipContextConversation = "conversation"
)

// ContextDeliveryAddress marks the context of a shipped product purchase
const ContextDeliveryAddress = "delivery_address"

// PurchaseRequest asks to buy access to a target
type PurchaseRequest struct {
	RequestID         string `json:"request_id" binding:"omitempty,max=64"`
	BuyerID           uint64 `json:"-" binding:"required"`
	TargetType        string `json:"target_type" binding:"required,oneof=product video gallery feed stream subscription"`
	TargetID          uint64 `json:"target_id" binding:"required"`
	Quantity          int    `json:"quantity" binding:"omitempty,min=1"`
	CouponCode        string `json:"coupon_code" binding:"omitempty,max=50"`
	SubscriptionType  string `json:"subscription_type" binding:"omitempty,oneof=monthly yearly"`
	DeliveryAddressID uint64 `json:"delivery_address_id"`
}

// TipRequest sends tokens to a performer
type TipRequest struct {
	RequestID   string `json:"request_id" binding:"omitempty,max=64"`
	BuyerID     uint64 `json:"-" binding:"required"`
	PerformerID uint64 `json:"performer_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	ContextType string `json:"context_type" binding:"omitempty,oneof=stream conversation"`
	ContextID   uint64 `json:"context_id"`
}

// RefundRequest reverses a successful transaction
type RefundRequest struct {
	TransactionID uint64 `json:"-" binding:"required"`
	Reason        string `json:"reason" binding:"omitempty,max=255"`
}

// Result is what a caller learns about a settlement
type Result struct {
	TransactionID    uint64 `json:"transaction_id"`
	Status           string `json:"status"`
	TotalPrice       int64  `json:"total_price"`
	SellerAmount     int64  `json:"seller_amount"`
	CommissionAmount int64  `json:"commission_amount"`
	EventID          string `json:"event_id,omitempty"`

	Transaction *model.Transaction `json:"-"`
}

// Config engine settings
type Config struct {
	DefaultCommissionBps int
	MinTipAmount         int64
	MaxQuantity          int
	LedgerTimeout        time.Duration
	MonthlyPeriod        time.Duration
	YearlyPeriod         time.Duration
}

// target is a resolved purchasable entity
type target struct {
	sellerID    uint64
	unitPrice   int64
	productType string
	physical    bool
}

func resultOf(t *model.Transaction) *Result {
	return &Result{
		TransactionID:    t.ID,
		Status:           t.Status,
		TotalPrice:       t.TotalPrice,
		SellerAmount:     t.SellerAmount,
		CommissionAmount: t.CommissionAmount,
		Transaction:      t,
	}
}
