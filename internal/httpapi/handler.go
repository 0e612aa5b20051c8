package httpapi

import (
	"strconv"

	"promoflow/pkg/errutil"
	"promoflow/pkg/middleware"
	"promoflow/services/campaign"
	"promoflow/services/ledger"
	"promoflow/services/metricsync"
	"promoflow/services/task"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi.admin",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler serves the admin API over the orchestration services.
type Handler struct {
	tasks    *task.Service
	ledger   *ledger.Service
	campaign *campaign.Service
	sync     *metricsync.Service
}

type Params struct {
	fx.In

	Tasks    *task.Service
	Ledger   *ledger.Service
	Campaign *campaign.Service
	Sync     *metricsync.Service
}

func NewHandler(p Params) *Handler {
	return &Handler{
		tasks:    p.Tasks,
		ledger:   p.Ledger,
		campaign: p.Campaign,
		sync:     p.Sync,
	}
}

func Register(engine *gin.Engine, h *Handler) {
	v1 := engine.Group("/v1", middleware.Logger(), middleware.Error(), middleware.Operator())

	tasks := v1.Group("/tasks")
	tasks.GET("", h.ListTasks)
	tasks.POST("", h.EnqueueTask)
	tasks.POST("/process", h.ProcessTasks)
	tasks.GET("/:id", h.GetTask)
	tasks.POST("/:id/execute", h.ExecuteTask)
	tasks.POST("/:id/cancel", h.CancelTask)

	accounts := v1.Group("/accounts/:id")
	accounts.GET("/balance", h.GetBalance)
	accounts.GET("/balance/check", h.CheckBalance)
	accounts.POST("/recharge", h.Recharge)
	accounts.GET("/transactions", h.ListTransactions)

	works := v1.Group("/works/:id")
	works.POST("/deliveries", h.SubmitDelivery)
	works.GET("/delivery-logs", h.ListDeliveryLogs)
	works.POST("/sync", h.ScheduleSync)

	campaigns := v1.Group("/campaigns/:id")
	campaigns.GET("", h.GetCampaign)
	campaigns.POST("/pause", h.PauseDelivery)
	campaigns.POST("/resume", h.ResumeDelivery)

	v1.GET("/pricing/:action", h.GetPrice)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errutil.BadRequest(key+" must be an integer", err)
	}
	return n, nil
}

// bind decodes an optional JSON body. An empty body leaves req untouched.
func bind(c *gin.Context, req any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(req); err != nil {
		return errutil.BadRequest("invalid request body", err)
	}
	return nil
}
