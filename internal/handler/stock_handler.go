package handler

import (
	"github.com/gin-gonic/gin"

	"fanhub/internal/service/stock"
	"fanhub/pkg/utils"
)

// StockHandler stock handler
type StockHandler struct {
	stockService stock.StockService
}

// NewStockHandler creates a stock handler
func NewStockHandler(stockService stock.StockService) *StockHandler {
	return &StockHandler{
		stockService: stockService,
	}
}

// CheckConsistency compares one product with its stock log
func (h *StockHandler) CheckConsistency(c *gin.Context) {
	productID, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, err, nil)
		return
	}

	report, err := h.stockService.CheckStockConsistency(c.Request.Context(), productID)
	if err != nil {
		utils.ErrorResponse(c, err, nil)
		return
	}

	utils.SuccessResponse(c, report)
}

// CheckAll runs the reconciliation now and lists inconsistent products
func (h *StockHandler) CheckAll(c *gin.Context) {
	reports, err := h.stockService.CheckAll(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, err, nil)
		return
	}
	if reports == nil {
		reports = []*stock.ConsistencyReport{}
	}

	utils.SuccessResponse(c, gin.H{
		"inconsistent": reports,
		"count":        len(reports),
	})
}
