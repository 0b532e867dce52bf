package event

import (
	"time"
)

// TransactionPayload is a snapshot of a settled, failed or refunded
// transaction, enough for listeners to act without reading it back.
type TransactionPayload struct {
	TransactionID    uint64     `json:"transaction_id"`
	RefundOfID       *uint64    `json:"refund_of_id,omitempty"`
	BuyerID          uint64     `json:"buyer_id"`
	SellerID         uint64     `json:"seller_id"`
	Type             string     `json:"type"`
	TargetID         uint64     `json:"target_id"`
	ProductType      string     `json:"product_type,omitempty"`
	SubscriptionType string     `json:"subscription_type,omitempty"`
	Quantity         int        `json:"quantity"`
	TotalPrice       int64      `json:"total_price"`
	SellerAmount     int64      `json:"seller_amount"`
	CommissionAmount int64      `json:"commission_amount"`
	Status           string     `json:"status"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
}

// ReactionPayload describes a like being added or removed
type ReactionPayload struct {
	ReactionID  uint64 `json:"reaction_id"`
	UserID      uint64 `json:"user_id"`
	ObjectType  string `json:"object_type"`
	ObjectID    uint64 `json:"object_id"`
	Action      string `json:"action"`
	PerformerID uint64 `json:"performer_id"`
}

// PayoutRequestPayload carries the new state of a payout request and the
// status it had before the update.
type PayoutRequestPayload struct {
	RequestID     uint64 `json:"request_id"`
	PerformerID   uint64 `json:"performer_id"`
	RequestTokens int64  `json:"request_tokens"`
	Status        string `json:"status"`
	OldStatus     string `json:"old_status"`
}

// PerformerPayload is emitted when a performer profile changes
type PerformerPayload struct {
	PerformerID         uint64 `json:"performer_id"`
	Email               string `json:"email,omitempty"`
	Name                string `json:"name,omitempty"`
	VerifiedDocument    bool   `json:"verified_document"`
	OldVerifiedDocument bool   `json:"old_verified_document"`
}

// CategoryPayload identifies a category
type CategoryPayload struct {
	CategoryID uint64 `json:"category_id"`
	Name       string `json:"name,omitempty"`
}

// Actor types on the realtime socket
const (
	ActorUser      = "user"
	ActorPerformer = "performer"
)

// DisconnectPayload is emitted when the last socket of an actor closes
type DisconnectPayload struct {
	ActorID   uint64 `json:"actor_id"`
	ActorType string `json:"actor_type"`
}

// TransitionPayload is emitted when a scheduled entity goes live
type TransitionPayload struct {
	EntityType  string     `json:"entity_type"`
	EntityID    uint64     `json:"entity_id"`
	PerformerID uint64     `json:"performer_id"`
	OldStatus   string     `json:"old_status"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ActivatedAt time.Time  `json:"activated_at"`
}

func init() {
	tx := func() interface{} { return &TransactionPayload{} }
	Register(ChannelTransaction, PurchaseSucceeded, tx)
	Register(ChannelTransaction, PurchaseFailed, tx)
	Register(ChannelTransaction, Refunded, tx)

	reaction := func() interface{} { return &ReactionPayload{} }
	Register(ChannelReaction, Created, reaction)
	Register(ChannelReaction, Deleted, reaction)

	Register(ChannelPayoutRequest, Updated, func() interface{} { return &PayoutRequestPayload{} })
	Register(ChannelPerformer, Updated, func() interface{} { return &PerformerPayload{} })
	Register(ChannelCategory, Deleted, func() interface{} { return &CategoryPayload{} })
	Register(ChannelSocket, Disconnected, func() interface{} { return &DisconnectPayload{} })

	transition := func() interface{} { return &TransitionPayload{} }
	Register(ChannelFeed, Activated, transition)
	Register(ChannelStream, Activated, transition)
}
