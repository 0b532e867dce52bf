package model

import (
	"time"
)

// User is a fan account. Its balance is debited by purchases and tips.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:user id" json:"id"`
	Username  string    `gorm:"type:varchar(50);uniqueIndex;not null;comment:username" json:"username"`
	Email     *string   `gorm:"type:varchar(100);uniqueIndex;comment:email" json:"email,omitempty"`
	Balance   int64     `gorm:"type:bigint;not null;default:0;comment:token balance (cents)" json:"balance"`
	Status    int8      `gorm:"type:tinyint;not null;default:1;index;comment:1-active 2-disabled" json:"status"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// UserStatus user status const
const (
	UserStatusNormal   = 1
	UserStatusDisabled = 2
)

// IsActive check if user is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusNormal
}

// Account kinds that hold a token balance
const (
	AccountUser      = "user"
	AccountPerformer = "performer"
)

// AccountTable returns the table holding balances of the account kind
func AccountTable(kind string) (string, bool) {
	switch kind {
	case AccountUser:
		return User{}.TableName(), true
	case AccountPerformer:
		return Performer{}.TableName(), true
	default:
		return "", false
	}
}
