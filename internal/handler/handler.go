package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/model"
	"smart-card-relay-go/internal/pipeline"
)

const healthPingTimeout = 2 * time.Second

// Scheduler is the repeating-mode control used by the handlers
type Scheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (model.RunSummary, error)
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// AuditStore reads the card and pass history
type AuditStore interface {
	ListCardLogs(page, limit int) ([]model.CardLog, int64, error)
	ListCardLogsByMessage(messageID string) ([]model.CardLog, error)
	ListPassLogs(limit int) ([]model.PassLog, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	state     *pipeline.State
	scheduler Scheduler
	audit     AuditStore
	ping      func(ctx context.Context) error
}

// NewHandlers creates new HTTP handlers. audit and ping are nil when the
// database is disabled.
func NewHandlers(state *pipeline.State, scheduler Scheduler, audit AuditStore, ping func(ctx context.Context) error) *Handlers {
	return &Handlers{
		state:     state,
		scheduler: scheduler,
		audit:     audit,
		ping:      ping,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)

		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)

		api.GET("/logs", h.GetLogs)
		api.GET("/cards", h.GetCards)
		api.GET("/passes", h.GetPasses)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:       "ok",
		Timestamp:    time.Now(),
		Database:     "disabled",
		Scheduler:    "stopped",
		ProcessedIDs: h.state.SeenCount(),
	}

	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			response.Status = "error"
			response.Database = "error"
			logrus.Errorf("Database health check failed: %v", err)
		} else {
			response.Database = "ok"
		}
	}

	if h.scheduler.IsRunning() {
		response.Scheduler = "running"
		response.NextRun = timePtr(h.scheduler.GetNextRun())
	}
	response.LastRun = timePtr(h.scheduler.GetLastRun())

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is missing, malformed or above max
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 1 || v > max {
		return def
	}
	return v
}
