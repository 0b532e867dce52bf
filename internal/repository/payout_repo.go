package repository

import (
	"context"

	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

// PayoutRepository payout request repository interface
type PayoutRepository interface {
	// GetByID gets a payout request by ID
	GetByID(ctx context.Context, id uint64) (*model.PayoutRequest, error)

	// Complete deducts the requested tokens from the performer of a done
	// request. It reports false when the balance was already deducted.
	Complete(ctx context.Context, id uint64) (bool, error)
}

// payoutRepository payout repository implementation
type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a payout repository
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

// GetByID gets a payout request by ID
func (r *payoutRepository) GetByID(ctx context.Context, id uint64) (*model.PayoutRequest, error) {
	var p model.PayoutRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if isNotFound(err) {
			return nil, utils.Errorf(utils.CodeNotFound, "payout request %d not found", id)
		}
		return nil, err
	}
	return &p, nil
}

// Complete flips balance_deducted and debits the performer in one
// transaction; the flag update is conditional so only one caller wins.
func (r *payoutRepository) Complete(ctx context.Context, id uint64) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.PayoutRequest{}).
			Where("id = ? AND status = ? AND balance_deducted = ?", id, model.PayoutStatusDone, false).
			Update("balance_deducted", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		var p model.PayoutRequest
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		if err := adjust(tx, model.Performer{}.TableName(), p.PerformerID, -p.RequestTokens); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
