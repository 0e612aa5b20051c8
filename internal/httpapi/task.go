package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"promoflow/pkg/errutil"
	"promoflow/services/task"

	"github.com/gin-gonic/gin"
)

type enqueueTaskRequest struct {
	Type        task.Type       `json:"type" binding:"required"`
	AccountID   string          `json:"account_id"`
	WorkID      string          `json:"work_id"`
	CampaignID  string          `json:"campaign_id"`
	Params      json.RawMessage `json:"params"`
	Priority    *int            `json:"priority"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
	MaxRetries  *int            `json:"max_retries"`
}

func (h *Handler) EnqueueTask(c *gin.Context) {
	var req enqueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	var opts []task.EnqueueOption
	if req.Priority != nil {
		opts = append(opts, task.WithPriority(*req.Priority))
	}
	if req.ScheduledAt != nil {
		opts = append(opts, task.ScheduleAt(*req.ScheduledAt))
	}
	if req.MaxRetries != nil {
		opts = append(opts, task.WithMaxRetries(*req.MaxRetries))
	}

	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}

	id, err := h.tasks.Enqueue(c.Request.Context(), req.Type, task.Refs{
		AccountID:  req.AccountID,
		WorkID:     req.WorkID,
		CampaignID: req.CampaignID,
	}, params, opts...)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) ListTasks(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.Error(err)
		return
	}

	tasks, err := h.tasks.List(c.Request.Context(), task.Filter{
		Status:    task.Status(c.Query("status")),
		Type:      task.Type(c.Query("type")),
		AccountID: c.Query("account_id"),
		WorkID:    c.Query("work_id"),
		Limit:     limit,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

type processTasksRequest struct {
	BatchSize int `json:"batch_size"`
}

func (h *Handler) ProcessTasks(c *gin.Context) {
	var req processTasksRequest
	if err := bind(c, &req); err != nil {
		c.Error(err)
		return
	}

	res, err := h.tasks.ProcessDue(c.Request.Context(), req.BatchSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) ExecuteTask(c *gin.Context) {
	res, err := h.tasks.Execute(c.Request.Context(), c.Param("id"))
	if errors.Is(err, task.ErrTaskNotClaimable) {
		c.Error(errutil.Conflict("task is not pending", err))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelTask(c *gin.Context) {
	cancelled, err := h.tasks.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}
