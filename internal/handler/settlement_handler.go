package handler

import (
	"github.com/gin-gonic/gin"

	"fanhub/internal/middleware"
	"fanhub/internal/service/settlement"
	"fanhub/pkg/log"
	"fanhub/pkg/utils"
)

// SettlementHandler exposes purchases, tips and the admin ledger actions
type SettlementHandler struct {
	engine settlement.Engine
}

// NewSettlementHandler creates a settlement handler
func NewSettlementHandler(engine settlement.Engine) *SettlementHandler {
	return &SettlementHandler{engine: engine}
}

// Purchase buys a target for the authenticated user
func (h *SettlementHandler) Purchase(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, utils.ErrUnauthorized, nil)
		return
	}

	req := settlement.PurchaseRequest{BuyerID: buyerID}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, utils.WrapError(err, utils.CodeInvalidParam, "invalid request body"), nil)
		return
	}

	res, err := h.engine.Purchase(c.Request.Context(), &req)
	h.respond(c, res, err)
}

// Tip sends tokens to a performer
func (h *SettlementHandler) Tip(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, utils.ErrUnauthorized, nil)
		return
	}

	req := settlement.TipRequest{BuyerID: buyerID}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, utils.WrapError(err, utils.CodeInvalidParam, "invalid request body"), nil)
		return
	}

	res, err := h.engine.Tip(c.Request.Context(), &req)
	h.respond(c, res, err)
}

// Refund reverses a successful transaction
func (h *SettlementHandler) Refund(c *gin.Context) {
	id, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, err, nil)
		return
	}

	req := settlement.RefundRequest{TransactionID: id}
	// the reason is optional, an empty body is fine
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, utils.WrapError(err, utils.CodeInvalidParam, "invalid request body"), nil)
			return
		}
	}

	res, err := h.engine.Refund(c.Request.Context(), &req)
	h.respond(c, res, err)
}

// Republish emits the event of a stored transaction again
func (h *SettlementHandler) Republish(c *gin.Context) {
	id, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, err, nil)
		return
	}

	res, err := h.engine.Republish(c.Request.Context(), id)
	h.respond(c, res, err)
}

// respond reports err with the result attached when there is one, so a
// client told about a failed delivery or a failed ledger write still learns
// the transaction id
func (h *SettlementHandler) respond(c *gin.Context, res *settlement.Result, err error) {
	if err != nil {
		if utils.GetErrorCode(err) == utils.CodeInternalError {
			log.WithContext(c.Request.Context()).WithError(err).Error("Settlement request failed")
		}
		if res != nil {
			utils.ErrorResponse(c, err, res)
			return
		}
		utils.ErrorResponse(c, err, nil)
		return
	}
	utils.SuccessResponse(c, res)
}
