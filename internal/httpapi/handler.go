package httpapi

import (
	"net/http"
	"time"

	"estatecore/pkg/config"
	"estatecore/pkg/db/pagination"
	"estatecore/pkg/errutil"
	"estatecore/pkg/health"
	"estatecore/pkg/lock"
	"estatecore/pkg/middleware"
	"estatecore/pkg/taskname"
	"estatecore/services/reminder"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewRouter),
)

const headerOrganizationID = "X-Organization-ID"

type Handler struct {
	reminders *reminder.Service
	stats     lock.StatsStore
	inspector *asynq.Inspector
	health    health.HealthService
}

type HandlerParams struct {
	fx.In
	Reminders *reminder.Service
	Stats     lock.StatsStore
	Inspector *asynq.Inspector
	Health    health.HealthService
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		reminders: p.Reminders,
		stats:     p.Stats,
		inspector: p.Inspector,
		health:    p.Health,
	}
}

func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error(cfg.AppEnv))

	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	api := r.Group("/api")
	api.POST("/contracts/:id/send", h.SendReminder)
	api.GET("/contracts/:id/reminders", h.ListReminders)

	admin := r.Group("/admin")
	admin.POST("/scheduler/run-reminders", h.RunReminders)
	admin.GET("/scheduler/stats", h.SchedulerStats)

	return r
}

type sendReminderRequest struct {
	Channel string `json:"channel"`
}

func (h *Handler) SendReminder(c *gin.Context) {
	orgID := c.GetHeader(headerOrganizationID)
	if orgID == "" {
		c.Error(errutil.Forbidden("missing organization scope"))
		return
	}

	var req sendReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	rem, jobID, err := h.reminders.SendNow(c.Request.Context(), c.Param("id"), orgID, reminder.Channel(req.Channel))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reminderId": rem.ID,
		"jobId":      jobID,
	})
}

func (h *Handler) ListReminders(c *gin.Context) {
	orgID := c.GetHeader(headerOrganizationID)
	if orgID == "" {
		c.Error(errutil.Forbidden("missing organization scope"))
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", errutil.WithErr(err)))
		return
	}

	rows, info, err := h.reminders.ListReminders(c.Request.Context(), c.Param("id"), orgID, p)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      rows,
		"page_info": info,
	})
}

// RunReminders triggers one scheduler pass synchronously, without the leader
// lock. Unsafe against concurrent instances; the locked loop is the
// production entry point.
func (h *Handler) RunReminders(c *gin.Context) {
	created, err := h.reminders.RunDailyPass(c.Request.Context(), time.Now())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"created": len(created)})
}

func (h *Handler) SchedulerStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.stats.Snapshot(ctx)
	if err != nil {
		c.Error(err)
		return
	}

	queue := gin.H{
		"waiting":   0,
		"active":    0,
		"delayed":   0,
		"failed":    0,
		"completed": 0,
		"paused":    false,
	}
	// queue info is missing until the first job is enqueued
	if info, err := h.inspector.GetQueueInfo(taskname.QueueReminders); err == nil {
		queue["waiting"] = info.Pending + info.Retry
		queue["active"] = info.Active
		queue["delayed"] = info.Scheduled
		queue["failed"] = info.Archived
		queue["completed"] = info.Completed
		queue["paused"] = info.Paused
	}

	c.JSON(http.StatusOK, gin.H{
		"lastRun":     stats.LastRun,
		"lastCreated": stats.LastCreated,
		"lastError":   stats.LastError,
		"queue":       queue,
	})
}
