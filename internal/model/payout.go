package model

import (
	"time"
)

// Payout request status
const (
	PayoutStatusPending  = "pending"
	PayoutStatusApproved = "approved"
	PayoutStatusRejected = "rejected"
	PayoutStatusDone     = "done"
)

// PayoutRequest is a performer asking to withdraw tokens. The balance is
// only decremented once, when the request moves from pending to done.
type PayoutRequest struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID     uint64    `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	RequestTokens   int64     `gorm:"type:bigint;not null" json:"request_tokens"`
	Status          string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	BalanceDeducted bool      `gorm:"not null;default:false" json:"balance_deducted"`
	AdminNote       *string   `gorm:"type:varchar(255)" json:"admin_note,omitempty"`
	CreatedAt       time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (PayoutRequest) TableName() string {
	return "payout_requests"
}

// Reaction object types
const (
	ReactionObjectFeed    = "feed"
	ReactionObjectVideo   = "video"
	ReactionObjectGallery = "gallery"
)

// ReactionActionLike is the only counted reaction
const ReactionActionLike = "like"

// Reaction is a fan's like on a piece of content
type Reaction struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_reaction,priority:1" json:"user_id"`
	ObjectType  string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_reaction,priority:2" json:"object_type"`
	ObjectID    uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_reaction,priority:3" json:"object_id"`
	Action      string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_reaction,priority:4" json:"action"`
	PerformerID uint64    `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (Reaction) TableName() string {
	return "reactions"
}

// ReactionCount marks a reaction event whose like counters were applied.
// It is written in the same transaction as the counters.
type ReactionCount struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ReactionID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_reaction_count,priority:1" json:"reaction_id"`
	Event      string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_reaction_count,priority:2" json:"event"`
	Delta      int64     `gorm:"type:tinyint;not null" json:"delta"`
	CreatedAt  time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (ReactionCount) TableName() string {
	return "reaction_counts"
}
