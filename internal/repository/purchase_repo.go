package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fanhub/internal/model"
)

// PurchasedItemRepository tracks which buyer owns which content
type PurchasedItemRepository interface {
	// Grant records ownership; granting twice is a no-op
	Grant(ctx context.Context, item *model.PurchasedItem) error

	// Revoke removes the ownership created by a transaction
	Revoke(ctx context.Context, transactionID uint64) (int64, error)

	// IsPurchased reports whether buyer owns the target
	IsPurchased(ctx context.Context, buyerID uint64, targetType string, targetID uint64) (bool, error)
}

type purchasedItemRepository struct {
	db *gorm.DB
}

// NewPurchasedItemRepository creates a purchased item repository
func NewPurchasedItemRepository(db *gorm.DB) PurchasedItemRepository {
	return &purchasedItemRepository{db: db}
}

func (r *purchasedItemRepository) Grant(ctx context.Context, item *model.PurchasedItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(item).Error
}

func (r *purchasedItemRepository) Revoke(ctx context.Context, transactionID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Delete(&model.PurchasedItem{})
	return result.RowsAffected, result.Error
}

func (r *purchasedItemRepository) IsPurchased(ctx context.Context, buyerID uint64, targetType string, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PurchasedItem{}).
		Where("buyer_id = ? AND target_type = ? AND target_id = ?", buyerID, targetType, targetID).
		Count(&count).Error
	return count > 0, err
}
