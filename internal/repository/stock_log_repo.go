package repository

import (
	"context"

	"gorm.io/gorm"

	"fanhub/internal/model"
)

// StockLogRepository stock log repository interface
type StockLogRepository interface {
	// GetByTransaction gets the movement of a transaction, or nil
	GetByTransaction(ctx context.Context, transactionID uint64, operationType int8) (*model.StockLog, error)

	// LastByProduct gets the latest movement of a product, or nil
	LastByProduct(ctx context.Context, productID uint64) (*model.StockLog, error)

	// ListByProduct lists movements of a product, newest first
	ListByProduct(ctx context.Context, productID uint64, limit int) ([]model.StockLog, error)
}

// stockLogRepository stock log repository implementation
type stockLogRepository struct {
	db *gorm.DB
}

// NewStockLogRepository creates a stock log repository
func NewStockLogRepository(db *gorm.DB) StockLogRepository {
	return &stockLogRepository{
		db: db,
	}
}

// GetByTransaction gets a stock log by transaction and operation
func (r *stockLogRepository) GetByTransaction(ctx context.Context, transactionID uint64, operationType int8) (*model.StockLog, error) {
	var l model.StockLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND operation_type = ?", transactionID, operationType).
		First(&l).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// LastByProduct gets the most recent stock log of a product
func (r *stockLogRepository) LastByProduct(ctx context.Context, productID uint64) (*model.StockLog, error) {
	var l model.StockLog
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		First(&l).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// ListByProduct lists stock logs of a product
func (r *stockLogRepository) ListByProduct(ctx context.Context, productID uint64, limit int) ([]model.StockLog, error) {
	var logs []model.StockLog
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
