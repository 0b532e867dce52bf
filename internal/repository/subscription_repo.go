package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fanhub/internal/model"
)

// SubscriptionGrant is the access bought by one subscription transaction
type SubscriptionGrant struct {
	UserID           uint64
	PerformerID      uint64
	SubscriptionType string
	ExpiresAt        time.Time
	TransactionID    uint64
}

// SubscriptionRepository subscription repository interface
type SubscriptionRepository interface {
	// Get returns the subscription of the pair, or nil
	Get(ctx context.Context, userID, performerID uint64) (*model.Subscription, error)

	// Apply creates or extends a subscription. It reports false when the
	// transaction was applied already.
	Apply(ctx context.Context, g SubscriptionGrant) (bool, error)

	// Revoke ends the subscription last extended by a transaction
	Revoke(ctx context.Context, transactionID uint64, now time.Time) (int64, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Get(ctx context.Context, userID, performerID uint64) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND performer_id = ?", userID, performerID).
		First(&s).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepository) Apply(ctx context.Context, g SubscriptionGrant) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s model.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND performer_id = ?", g.UserID, g.PerformerID).
			First(&s).Error
		if err != nil && !isNotFound(err) {
			return err
		}

		if isNotFound(err) {
			applied = true
			return tx.Create(&model.Subscription{
				UserID:            g.UserID,
				PerformerID:       g.PerformerID,
				SubscriptionType:  g.SubscriptionType,
				ExpiredAt:         g.ExpiresAt,
				LastTransactionID: g.TransactionID,
			}).Error
		}

		if s.LastTransactionID == g.TransactionID {
			return nil
		}

		expiredAt := g.ExpiresAt
		if s.ExpiredAt.After(expiredAt) {
			expiredAt = s.ExpiredAt
		}
		applied = true
		return tx.Model(&model.Subscription{}).
			Where("id = ?", s.ID).
			Updates(map[string]interface{}{
				"subscription_type":   g.SubscriptionType,
				"expired_at":          expiredAt,
				"last_transaction_id": g.TransactionID,
			}).Error
	})
	return applied, err
}

func (r *subscriptionRepository) Revoke(ctx context.Context, transactionID uint64, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("last_transaction_id = ? AND expired_at > ?", transactionID, now).
		Update("expired_at", now)
	return result.RowsAffected, result.Error
}
