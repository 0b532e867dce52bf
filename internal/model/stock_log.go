package model

import (
	"time"
)

// StockLog records one stock movement caused by a transaction. The unique
// (transaction_id, operation_type) pair makes the stock listener idempotent.
type StockLog struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID     uint64    `gorm:"type:bigint unsigned;not null;index" json:"product_id"`
	TransactionID uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_stock_log_tx_op,priority:1" json:"transaction_id"`
	OperationType int8      `gorm:"type:tinyint;not null;uniqueIndex:uk_stock_log_tx_op,priority:2;comment:1-deduct 2-revert" json:"operation_type"`
	Quantity      int       `gorm:"type:int;not null;comment:signed delta" json:"quantity"`
	BeforeStock   int       `gorm:"type:int;not null" json:"before_stock"`
	AfterStock    int       `gorm:"type:int;not null" json:"after_stock"`
	Remark        *string   `gorm:"type:varchar(255)" json:"remark,omitempty"`
	CreatedAt     time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName set name
func (StockLog) TableName() string {
	return "stock_logs"
}

// OperationType operation type const
const (
	OperationTypeDeduct = 1
	OperationTypeRevert = 2
)

// IsDeduct check if operation is deduct
func (sl *StockLog) IsDeduct() bool {
	return sl.OperationType == OperationTypeDeduct
}

// GetOperationTypeName get operation type name
func (sl *StockLog) GetOperationTypeName() string {
	switch sl.OperationType {
	case OperationTypeDeduct:
		return "deduct"
	case OperationTypeRevert:
		return "revert"
	default:
		return "unknown"
	}
}
