package httpapi

import (
	"net/http"

	"promoflow/pkg/errutil"
	"promoflow/pkg/middleware"
	"promoflow/services/ledger"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": c.Param("id"), "balance": balance})
}

func (h *Handler) CheckBalance(c *gin.Context) {
	action := ledger.Action(c.Query("action"))
	if action == "" {
		c.Error(errutil.BadRequest("action is required", nil))
		return
	}

	res, err := h.ledger.CheckBalance(c.Request.Context(), c.Param("id"), action)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type rechargeRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handler) Recharge(c *gin.Context) {
	var req rechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ctx := c.Request.Context()
	res, err := h.ledger.Recharge(ctx, c.Param("id"), req.Amount, middleware.GetOperator(ctx), req.Note)
	if err != nil {
		c.Error(err)
		return
	}
	if !res.Success {
		c.Error(errutil.BadRequest(res.Error, nil))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.Error(err)
		return
	}

	txns, err := h.ledger.ListTransactions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

func (h *Handler) GetPrice(c *gin.Context) {
	action := ledger.Action(c.Param("action"))
	price, err := h.ledger.Pricing().Price(c.Request.Context(), action)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action, "price": price})
}
