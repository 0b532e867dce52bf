package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

var (
	// ErrStockMovementApplied means the transaction already moved this stock
	ErrStockMovementApplied = errors.New("stock movement already applied")
	// ErrInsufficientStock means a deduction would take stock below zero. The
	// deduction is still logged with a zero quantity so its refund moves
	// nothing.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDeductPending means a revert arrived before the deduction it undoes
	ErrDeductPending = errors.New("stock deduction not recorded yet")
)

// StockMovement is one stock change caused by a transaction
type StockMovement struct {
	ProductID     uint64
	TransactionID uint64
	OperationType int8
	Quantity      int
	Remark        string
}

// ProductRepository product repository interface
type ProductRepository interface {
	// GetByID gets a product by ID
	GetByID(ctx context.Context, id uint64) (*model.Product, error)

	// MoveStock applies a movement and records it in the stock log, once
	// per (transaction, operation). A deduction that finds too little stock
	// is logged as unfilled and returned with ErrInsufficientStock.
	MoveStock(ctx context.Context, m StockMovement) (*model.StockLog, error)

	// ListPhysical lists physical products with id > afterID
	ListPhysical(ctx context.Context, afterID uint64, limit int) ([]*model.Product, error)
}

// productRepository product repository implementation
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// GetByID gets a product by ID
func (r *productRepository) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if isNotFound(err) {
			return nil, utils.Errorf(utils.CodeNotFound, "product %d not found", id)
		}
		return nil, err
	}
	return &p, nil
}

// MoveStock locks the product row, checks the log for an earlier
// application of the same movement and then updates stock and log together.
// A revert undoes exactly what the matching deduction moved.
func (r *productRepository) MoveStock(ctx context.Context, m StockMovement) (*model.StockLog, error) {
	var (
		entry *model.StockLog
		short bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", m.ProductID).
			First(&p).Error; err != nil {
			if isNotFound(err) {
				return utils.Errorf(utils.CodeNotFound, "product %d not found", m.ProductID)
			}
			return err
		}

		var applied int64
		if err := tx.Model(&model.StockLog{}).
			Where("transaction_id = ? AND operation_type = ?", m.TransactionID, m.OperationType).
			Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			return ErrStockMovementApplied
		}

		delta := -m.Quantity
		if m.OperationType == model.OperationTypeRevert {
			var deduct model.StockLog
			err := tx.Where("transaction_id = ? AND operation_type = ?", m.TransactionID, model.OperationTypeDeduct).
				First(&deduct).Error
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: transaction %d", ErrDeductPending, m.TransactionID)
				}
				return err
			}
			delta = -deduct.Quantity
		} else if p.Stock+delta < 0 {
			short = true
			delta = 0
		}

		entry = &model.StockLog{
			ProductID:     p.ID,
			TransactionID: m.TransactionID,
			OperationType: m.OperationType,
			Quantity:      delta,
			BeforeStock:   p.Stock,
			AfterStock:    p.Stock + delta,
		}
		remark := m.Remark
		if short {
			remark = strings.TrimSpace(fmt.Sprintf("%s unfilled: needed %d, had %d", remark, m.Quantity, p.Stock))
		}
		if remark != "" {
			entry.Remark = &remark
		}
		if err := tx.Create(entry).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrStockMovementApplied
			}
			return err
		}

		if delta == 0 {
			return nil
		}
		return tx.Model(&model.Product{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"stock": gorm.Expr("stock + ?", delta),
				"sold":  gorm.Expr("sold - ?", delta),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	if short {
		return entry, fmt.Errorf("%w: product %d has %d, needs %d", ErrInsufficientStock, entry.ProductID, entry.BeforeStock, m.Quantity)
	}
	return entry, nil
}

// ListPhysical lists physical products in id order
func (r *productRepository) ListPhysical(ctx context.Context, afterID uint64, limit int) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Where("type = ? AND id > ?", model.ProductTypePhysical, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&products).Error
	return products, err
}
