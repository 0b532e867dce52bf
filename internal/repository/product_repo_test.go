package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

func productRows(id uint64, stock int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "performer_id", "name", "type", "price", "stock", "sold", "status"}).
		AddRow(id, 2, "Signed poster", model.ProductTypePhysical, 1500, stock, 0, model.StatusActive)
}

func TestProductRepository_MoveStock(t *testing.T) {
	ctx := context.Background()

	t.Run("Deduct", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products` WHERE id = \\? .*FOR UPDATE").
			WithArgs(uint64(3), 1).
			WillReturnRows(productRows(3, 10))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs` WHERE transaction_id = \\? AND operation_type = \\?").
			WithArgs(uint64(1001), model.OperationTypeDeduct).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO `stock_logs`").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE `products` SET .*`stock`=stock \\+ \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 1001,
			OperationType: model.OperationTypeDeduct,
			Quantity:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, 10, entry.BeforeStock)
		assert.Equal(t, 8, entry.AfterStock)
		assert.Equal(t, -2, entry.Quantity)
	})

	t.Run("AlreadyApplied", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products`").WillReturnRows(productRows(3, 8))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectRollback()

		_, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 1001,
			OperationType: model.OperationTypeDeduct,
			Quantity:      2,
		})
		assert.ErrorIs(t, err, ErrStockMovementApplied)
	})

	t.Run("InsufficientIsLoggedUnfilled", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products`").WillReturnRows(productRows(3, 1))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec("INSERT INTO `stock_logs`").WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectCommit()

		entry, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 1002,
			OperationType: model.OperationTypeDeduct,
			Quantity:      2,
		})
		assert.ErrorIs(t, err, ErrInsufficientStock)
		require.NotNil(t, entry)
		assert.Equal(t, 0, entry.Quantity)
		assert.Equal(t, 1, entry.AfterStock)
	})

	t.Run("Revert", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products`").WillReturnRows(productRows(3, 8))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs`").
			WithArgs(uint64(2002), model.OperationTypeRevert).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE transaction_id = \\? AND operation_type = \\?").
			WithArgs(uint64(2002), model.OperationTypeDeduct, 1).
			WillReturnRows(stockLogRows(2002, -2))
		mock.ExpectExec("INSERT INTO `stock_logs`").WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("UPDATE `products`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entry, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 2002,
			OperationType: model.OperationTypeRevert,
			Quantity:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, entry.Quantity)
		assert.Equal(t, 10, entry.AfterStock)
	})

	t.Run("RevertOfUnfilledDeductMovesNothing", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products`").WillReturnRows(productRows(3, 1))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE transaction_id = \\? AND operation_type = \\?").
			WithArgs(uint64(1002), model.OperationTypeDeduct, 1).
			WillReturnRows(stockLogRows(1002, 0))
		mock.ExpectExec("INSERT INTO `stock_logs`").WillReturnResult(sqlmock.NewResult(4, 1))
		mock.ExpectCommit()

		entry, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 1002,
			OperationType: model.OperationTypeRevert,
			Quantity:      2,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, entry.Quantity)
		assert.Equal(t, 1, entry.AfterStock)
	})

	t.Run("RevertWithoutDeduct", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewProductRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `products`").WillReturnRows(productRows(3, 1))
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `stock_logs`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE transaction_id = \\? AND operation_type = \\?").
			WithArgs(uint64(1003), model.OperationTypeDeduct, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := repo.MoveStock(ctx, StockMovement{
			ProductID:     3,
			TransactionID: 1003,
			OperationType: model.OperationTypeRevert,
			Quantity:      2,
		})
		assert.ErrorIs(t, err, ErrDeductPending)
	})
}

func stockLogRows(txID uint64, quantity int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "product_id", "transaction_id", "operation_type", "quantity", "before_stock", "after_stock"}).
		AddRow(1, 3, txID, model.OperationTypeDeduct, quantity, 10, 10+quantity)
}

func TestProductRepository_GetByID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewProductRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `products` WHERE id = \\?").
		WithArgs(uint64(3), 1).
		WillReturnRows(productRows(3, 10))
	mock.ExpectQuery("SELECT \\* FROM `products` WHERE id = \\?").
		WithArgs(uint64(4), 1).
		WillReturnError(gorm.ErrRecordNotFound)

	p, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, p.IsPhysical())

	_, err = repo.GetByID(context.Background(), 4)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestStockLogRepository(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewStockLogRepository(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE product_id = \\? ORDER BY id DESC").
		WithArgs(uint64(3), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "transaction_id", "operation_type", "quantity", "before_stock", "after_stock"}).
			AddRow(9, 3, 1001, model.OperationTypeDeduct, -2, 10, 8))
	mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE transaction_id = \\? AND operation_type = \\?").
		WithArgs(uint64(5), model.OperationTypeRevert, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	last, err := repo.LastByProduct(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 8, last.AfterStock)
	assert.True(t, last.IsDeduct())

	none, err := repo.GetByTransaction(ctx, 5, model.OperationTypeRevert)
	require.NoError(t, err)
	assert.Nil(t, none)
}
