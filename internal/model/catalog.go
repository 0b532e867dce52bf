package model

import (
	"time"
)

// Content status shared by every sellable entity
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusInactive  = "inactive"
)

// Product types
const (
	ProductTypePhysical = "physical"
	ProductTypeDigital  = "digital"
)

// Product is a performer's store item. Only physical products track stock.
type Product struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID uint64    `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	Type        string    `gorm:"type:varchar(20);not null;default:'digital'" json:"type"`
	Price       int64     `gorm:"type:bigint;not null;comment:unit price (cents)" json:"price"`
	Stock       int       `gorm:"type:int;not null;default:0" json:"stock"`
	Sold        int       `gorm:"type:int;not null;default:0" json:"sold"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

// IsPhysical check if the product ships and consumes stock
func (p *Product) IsPhysical() bool {
	return p.Type == ProductTypePhysical
}

// Video is a paid or free video
type Video struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID uint64    `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	IsSale      bool      `gorm:"not null;default:false" json:"is_sale"`
	Price       int64     `gorm:"type:bigint;not null;default:0" json:"price"`
	TotalLikes  int64     `gorm:"type:bigint;not null;default:0" json:"total_likes"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Video) TableName() string {
	return "videos"
}

// Gallery is a paid or free photo set
type Gallery struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID uint64    `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	IsSale      bool      `gorm:"not null;default:false" json:"is_sale"`
	Price       int64     `gorm:"type:bigint;not null;default:0" json:"price"`
	TotalLikes  int64     `gorm:"type:bigint;not null;default:0" json:"total_likes"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Gallery) TableName() string {
	return "galleries"
}

// Feed is a post; it can be locked behind a price and published on a schedule
type Feed struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID uint64     `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	Text        string     `gorm:"type:text" json:"text"`
	IsSale      bool       `gorm:"not null;default:false" json:"is_sale"`
	Price       int64      `gorm:"type:bigint;not null;default:0" json:"price"`
	TotalLikes  int64      `gorm:"type:bigint;not null;default:0" json:"total_likes"`
	Status      string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	IsSchedule  bool       `gorm:"not null;default:false;index:idx_feed_schedule,priority:1" json:"is_schedule"`
	ScheduledAt *time.Time `gorm:"type:timestamp null;index:idx_feed_schedule,priority:2" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Feed) TableName() string {
	return "feeds"
}

// Stream is a live session; access can be sold and go-live can be scheduled
type Stream struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PerformerID uint64     `gorm:"type:bigint unsigned;not null;index" json:"performer_id"`
	Title       string     `gorm:"type:varchar(200);not null;default:''" json:"title"`
	Price       int64      `gorm:"type:bigint;not null;default:0" json:"price"`
	IsStreaming bool       `gorm:"not null;default:false" json:"is_streaming"`
	Status      string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	IsSchedule  bool       `gorm:"not null;default:false;index:idx_stream_schedule,priority:1" json:"is_schedule"`
	ScheduledAt *time.Time `gorm:"type:timestamp null;index:idx_stream_schedule,priority:2" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Stream) TableName() string {
	return "streams"
}

// Conversation is a private message thread between a fan and a performer
type Conversation struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_conversation_pair,priority:1" json:"user_id"`
	PerformerID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_conversation_pair,priority:2" json:"performer_id"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (Conversation) TableName() string {
	return "conversations"
}
