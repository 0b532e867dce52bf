package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

// LedgerRepository owns balances and transaction records. Settle and
// Refund are the only writes that move tokens between two accounts and
// each runs as one database transaction.
type LedgerRepository interface {
	// AdjustBalance applies delta to one account, refusing to go below zero
	AdjustBalance(ctx context.Context, kind string, id uint64, delta int64) (int64, error)

	// CreateTransaction stores a record without touching balances
	CreateTransaction(ctx context.Context, tx *model.Transaction) error

	// FindTransaction returns the latest successful, unrefunded purchase of
	// target by buyer, or nil
	FindTransaction(ctx context.Context, buyerID uint64, kind string, targetID uint64) (*model.Transaction, error)

	// FindByRequestID returns the transaction created for a client request id, or nil
	FindByRequestID(ctx context.Context, requestID string) (*model.Transaction, error)

	// GetByID gets a transaction by ID
	GetByID(ctx context.Context, id uint64) (*model.Transaction, error)

	// FindRefund returns the refund of a transaction, or nil
	FindRefund(ctx context.Context, originalID uint64) (*model.Transaction, error)

	// HasRedeemedCoupon reports whether buyer already settled with the coupon
	HasRedeemedCoupon(ctx context.Context, buyerID, couponID uint64) (bool, error)

	// Settle debits the buyer, credits the seller, redeems the coupon and
	// stores the record, all or nothing
	Settle(ctx context.Context, tx *model.Transaction) error

	// Refund reverses the balance movement of the original and stores the
	// refund record, all or nothing
	Refund(ctx context.Context, refund *model.Transaction) error
}

// ledgerRepository ledger repository implementation
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a ledger repository
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// AdjustBalance applies delta to one account and returns the new balance
func (r *ledgerRepository) AdjustBalance(ctx context.Context, kind string, id uint64, delta int64) (int64, error) {
	table, ok := model.AccountTable(kind)
	if !ok {
		return 0, utils.Errorf(utils.CodeInvalidParam, "unknown account kind %q", kind)
	}

	var balance int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjust(tx, table, id, delta); err != nil {
			return err
		}
		return tx.Table(table).Select("balance").Where("id = ?", id).Scan(&balance).Error
	})
	if err != nil {
		return 0, ledgerError(err)
	}
	return balance, nil
}

// CreateTransaction creates a transaction record
func (r *ledgerRepository) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return utils.WrapError(err, utils.CodeDatabaseError, "failed to create transaction")
	}
	return nil
}

// FindTransaction finds the purchase that makes target owned by buyer
func (r *ledgerRepository) FindTransaction(ctx context.Context, buyerID uint64, kind string, targetID uint64) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND type = ? AND target_id = ? AND status = ? AND refund_of_id IS NULL",
			buyerID, kind, targetID, model.TransactionStatusSuccess).
		Where("NOT EXISTS (SELECT 1 FROM transactions r WHERE r.refund_of_id = transactions.id)").
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// FindByRequestID finds a transaction by request ID (for idempotency)
func (r *ledgerRepository) FindByRequestID(ctx context.Context, requestID string) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&t).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil // Return nil for not found (not an error for idempotency check)
		}
		return nil, err
	}
	return &t, nil
}

// GetByID gets a transaction by ID
func (r *ledgerRepository) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if isNotFound(err) {
			return nil, utils.Errorf(utils.CodeNotFound, "transaction %d not found", id)
		}
		return nil, err
	}
	return &t, nil
}

// FindRefund finds the refund row of a transaction
func (r *ledgerRepository) FindRefund(ctx context.Context, originalID uint64) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).Where("refund_of_id = ?", originalID).First(&t).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// HasRedeemedCoupon checks coupon usage by buyer
func (r *ledgerRepository) HasRedeemedCoupon(ctx context.Context, buyerID, couponID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("buyer_id = ? AND coupon_id = ? AND status = ?", buyerID, couponID, model.TransactionStatusSuccess).
		Count(&count).Error
	return count > 0, err
}

// Settle runs the paired balance adjustment of a purchase
func (r *ledgerRepository) Settle(ctx context.Context, t *model.Transaction) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjust(tx, model.User{}.TableName(), t.BuyerID, -t.TotalPrice); err != nil {
			return err
		}

		if t.SellerAmount > 0 {
			if err := adjust(tx, model.Performer{}.TableName(), t.SellerID, t.SellerAmount); err != nil {
				return err
			}
		}

		if t.CouponID != nil {
			result := tx.Model(&model.Coupon{}).
				Where("id = ? AND used_count < number_of_uses", *t.CouponID).
				Update("used_count", gorm.Expr("used_count + ?", 1))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return utils.Errorf(utils.CodeCouponInvalid, "coupon %d has no uses left", *t.CouponID)
			}
		}

		if err := tx.Create(t).Error; err != nil {
			if isDuplicateKey(err) {
				return utils.WrapError(err, utils.CodeAlreadyPurchased, "duplicate transaction request")
			}
			return err
		}
		return nil
	})
	return ledgerError(err)
}

// Refund reverses a purchase. The seller gives back its share and the
// buyer gets the full amount back; the platform share is implicitly undone.
func (r *ledgerRepository) Refund(ctx context.Context, refund *model.Transaction) error {
	if refund.RefundOfID == nil {
		return utils.NewError(utils.CodeInvalidParam, "refund must reference the original transaction")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if refund.SellerAmount > 0 {
			if err := adjust(tx, model.Performer{}.TableName(), refund.SellerID, -refund.SellerAmount); err != nil {
				return err
			}
		}

		if err := adjust(tx, model.User{}.TableName(), refund.BuyerID, refund.TotalPrice); err != nil {
			return err
		}

		if err := tx.Create(refund).Error; err != nil {
			if isDuplicateKey(err) {
				return utils.WrapError(err, utils.CodeAlreadyRefunded,
					fmt.Sprintf("transaction %d already refunded", *refund.RefundOfID))
			}
			return err
		}
		return nil
	})
	return ledgerError(err)
}

// adjust moves one balance by delta inside tx. A debit only applies when
// the balance covers it.
func adjust(tx *gorm.DB, table string, id uint64, delta int64) error {
	if delta == 0 {
		return nil
	}

	q := tx.Table(table).Where("id = ?", id)
	if delta < 0 {
		q = q.Where("balance >= ?", -delta)
	}

	result := q.Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return utils.Errorf(utils.CodeNotFound, "account %s/%d not found", table, id)
	}
	return utils.Errorf(utils.CodeInsufficientBalance, "insufficient balance in %s/%d", table, id)
}

// ledgerError keeps domain errors as they are and turns store failures
// into ledger transaction errors
func ledgerError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := utils.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return utils.WrapError(err, utils.CodeLedgerTransaction, "ledger transaction timed out")
	}
	return utils.WrapError(err, utils.CodeLedgerTransaction, "ledger transaction failed")
}
