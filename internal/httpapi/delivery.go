package httpapi

import (
	"net/http"

	"promoflow/services/campaign"

	"github.com/gin-gonic/gin"
)

type submitDeliveryRequest struct {
	AccountID string `json:"account_id"`
	Budget    int64  `json:"budget"`
	BidAmount int64  `json:"bid_amount"`
}

// SubmitDelivery answers 402 when the account cannot pay for the campaign.
func (h *Handler) SubmitDelivery(c *gin.Context) {
	var req submitDeliveryRequest
	if err := bind(c, &req); err != nil {
		c.Error(err)
		return
	}

	res, err := h.campaign.SubmitDelivery(c.Request.Context(), campaign.SubmitRequest{
		AccountID: req.AccountID,
		WorkID:    c.Param("id"),
		Budget:    req.Budget,
		BidAmount: req.BidAmount,
	})
	if err != nil {
		c.Error(err)
		return
	}

	switch {
	case !res.Success:
		c.JSON(http.StatusPaymentRequired, res)
	case res.Idempotent:
		c.JSON(http.StatusOK, res)
	default:
		c.JSON(http.StatusCreated, res)
	}
}

func (h *Handler) ListDeliveryLogs(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.Error(err)
		return
	}

	logs, err := h.campaign.ListDeliveryLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery_logs": logs, "count": len(logs)})
}

func (h *Handler) ScheduleSync(c *gin.Context) {
	id, err := h.sync.Schedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	res, err := h.campaign.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) PauseDelivery(c *gin.Context) {
	var req pauseRequest
	if err := bind(c, &req); err != nil {
		c.Error(err)
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	res, err := h.campaign.PauseDelivery(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ResumeDelivery(c *gin.Context) {
	res, err := h.campaign.ResumeDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
