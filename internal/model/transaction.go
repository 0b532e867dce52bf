package model

import (
	"time"
)

// Transaction kinds
const (
	TransactionTypeProduct      = "product"
	TransactionTypeVideo        = "video"
	TransactionTypeGallery      = "gallery"
	TransactionTypeFeed         = "feed"
	TransactionTypeStream       = "stream"
	TransactionTypeTip          = "tip"
	TransactionTypeSubscription = "subscription"
)

// Transaction status. success, failed and refunded are terminal.
const (
	TransactionStatusPending  = "pending"
	TransactionStatusSuccess  = "success"
	TransactionStatusFailed   = "failed"
	TransactionStatusRefunded = "refunded"
)

// Subscription periods
const (
	SubscriptionMonthly = "monthly"
	SubscriptionYearly  = "yearly"
)

// Transaction is the durable record of one settlement attempt. A refund is a
// separate row pointing at the original through RefundOfID.
type Transaction struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement:false;comment:snowflake id" json:"id"`
	RequestID        *string    `gorm:"type:varchar(64);uniqueIndex;comment:client idempotency key" json:"request_id,omitempty"`
	BuyerID          uint64     `gorm:"type:bigint unsigned;not null;index:idx_tx_buyer_target,priority:1" json:"buyer_id"`
	SellerID         uint64     `gorm:"type:bigint unsigned;not null;index" json:"seller_id"`
	Type             string     `gorm:"type:varchar(20);not null;index:idx_tx_buyer_target,priority:2" json:"type"`
	TargetID         uint64     `gorm:"type:bigint unsigned;not null;index:idx_tx_buyer_target,priority:3" json:"target_id"`
	ProductType      string     `gorm:"type:varchar(20);not null;default:''" json:"product_type,omitempty"`
	SubscriptionType string     `gorm:"type:varchar(20);not null;default:''" json:"subscription_type,omitempty"`
	Quantity         int        `gorm:"type:int;not null;default:1" json:"quantity"`
	UnitPrice        int64      `gorm:"type:bigint;not null" json:"unit_price"`
	OriginalPrice    int64      `gorm:"type:bigint;not null" json:"original_price"`
	DiscountAmount   int64      `gorm:"type:bigint;not null;default:0" json:"discount_amount"`
	TotalPrice       int64      `gorm:"type:bigint;not null;comment:debited from buyer" json:"total_price"`
	SellerAmount     int64      `gorm:"type:bigint;not null;comment:credited to seller" json:"seller_amount"`
	CommissionAmount int64      `gorm:"type:bigint;not null;comment:platform share" json:"commission_amount"`
	CommissionBps    int        `gorm:"type:int;not null" json:"commission_bps"`
	CouponID         *uint64    `gorm:"type:bigint unsigned;index" json:"coupon_id,omitempty"`
	CouponCode       *string    `gorm:"type:varchar(50)" json:"coupon_code,omitempty"`
	ContextType      string     `gorm:"type:varchar(20);not null;default:''" json:"context_type,omitempty"`
	ContextID        uint64     `gorm:"type:bigint unsigned;not null;default:0" json:"context_id,omitempty"`
	RefundOfID       *uint64    `gorm:"type:bigint unsigned;uniqueIndex" json:"refund_of_id,omitempty"`
	Status           string     `gorm:"type:varchar(20);not null;index" json:"status"`
	FailureReason    *string    `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	ExpiresAt        *time.Time `gorm:"type:timestamp null;comment:end of a subscription period" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Transaction) TableName() string {
	return "transactions"
}

// IsSuccess check transaction settled
func (t *Transaction) IsSuccess() bool {
	return t.Status == TransactionStatusSuccess
}

// IsRefund check if this row is the refund of another transaction
func (t *Transaction) IsRefund() bool {
	return t.RefundOfID != nil
}

// Repeatable reports whether the same buyer may settle the same target again
// while an earlier success stands. Physical goods and tips can be bought
// many times; content access cannot.
func Repeatable(kind, productType string) bool {
	switch kind {
	case TransactionTypeTip:
		return true
	case TransactionTypeProduct:
		return productType == ProductTypePhysical
	default:
		return false
	}
}

// PurchasedItem grants a buyer access to a target. It is written by the
// purchase record listener and removed again when the purchase is refunded.
type PurchasedItem struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BuyerID       uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_purchased_item,priority:1" json:"buyer_id"`
	TargetType    string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_purchased_item,priority:2" json:"target_type"`
	TargetID      uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_purchased_item,priority:3" json:"target_id"`
	TransactionID uint64    `gorm:"type:bigint unsigned;not null" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (PurchasedItem) TableName() string {
	return "purchased_items"
}

// Subscription is a fan's access to all of a performer's subscriber content
type Subscription struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_subscription,priority:1" json:"user_id"`
	PerformerID       uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_subscription,priority:2" json:"performer_id"`
	SubscriptionType  string    `gorm:"type:varchar(20);not null" json:"subscription_type"`
	ExpiredAt         time.Time `gorm:"type:timestamp;not null" json:"expired_at"`
	LastTransactionID uint64    `gorm:"type:bigint unsigned;not null" json:"last_transaction_id"`
	CreatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Subscription) TableName() string {
	return "subscriptions"
}

// Coupon grants a percentage discount on purchases
type Coupon struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Code               string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	DiscountPercentage int       `gorm:"type:int;not null;comment:0-100" json:"discount_percentage"`
	NumberOfUses       int       `gorm:"type:int;not null;default:1" json:"number_of_uses"`
	UsedCount          int       `gorm:"type:int;not null;default:0" json:"used_count"`
	ExpiredAt          time.Time `gorm:"type:timestamp;not null" json:"expired_at"`
	Status             string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt          time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (Coupon) TableName() string {
	return "coupons"
}

// IsUsable check the coupon is active, unexpired and has uses left
func (c *Coupon) IsUsable(now time.Time) bool {
	return c.Status == StatusActive && now.Before(c.ExpiredAt) && c.UsedCount < c.NumberOfUses
}
