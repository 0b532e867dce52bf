package model

import (
	"time"
)

// Performer is a content seller. Balance accumulates the seller share of
// every settlement and is decremented when a payout completes.
type Performer struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement;comment:performer id" json:"id"`
	Username         string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Name             string    `gorm:"type:varchar(100);not null;default:''" json:"name"`
	Email            *string   `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	Balance          int64     `gorm:"type:bigint;not null;default:0;comment:token balance (cents)" json:"balance"`
	CommissionBps    *int      `gorm:"type:int;comment:platform commission override in basis points" json:"commission_bps,omitempty"`
	MonthlyPrice     int64     `gorm:"type:bigint;not null;default:0;comment:monthly subscription price" json:"monthly_price"`
	YearlyPrice      int64     `gorm:"type:bigint;not null;default:0;comment:yearly subscription price" json:"yearly_price"`
	VerifiedDocument bool      `gorm:"not null;default:false" json:"verified_document"`
	IsOnline         bool      `gorm:"not null;default:false" json:"is_online"`
	CategoryIDs      IDList    `gorm:"type:json;comment:category ids" json:"category_ids"`
	TotalLikes       int64     `gorm:"type:bigint;not null;default:0" json:"total_likes"`
	Status           string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt        time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Performer) TableName() string {
	return "performers"
}

// IsActive check if the performer can sell
func (p *Performer) IsActive() bool {
	return p.Status == StatusActive
}

// Commission returns the performer's commission in basis points, falling
// back to def when no override is configured.
func (p *Performer) Commission(def int) int {
	if p.CommissionBps != nil {
		return *p.CommissionBps
	}
	return def
}

// Category groups performers for browsing
type Category struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Slug      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName set name
func (Category) TableName() string {
	return "categories"
}
