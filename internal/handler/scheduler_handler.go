package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts repeating mode
func (h *Handlers) StartScheduler(c *gin.Context) {
	if h.scheduler.IsRunning() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_running",
			Message: "Scheduler is already running",
			Code:    http.StatusConflict,
		})
		return
	}

	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler: " + err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops repeating mode
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs one pass synchronously and returns its summary. The pass
// outlives a disconnected client.
func (h *Handlers) RunOnce(c *gin.Context) {
	summary, err := h.scheduler.RunOnce(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		c.JSON(http.StatusInternalServerError, RunOnceResponse{
			Summary: summary,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, RunOnceResponse{Summary: summary})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	response := SchedulerStatusResponse{
		Status:  "stopped",
		LastRun: timePtr(h.scheduler.GetLastRun()),
	}
	if h.scheduler.IsRunning() {
		response.Status = "running"
		response.NextRun = timePtr(h.scheduler.GetNextRun())
	}
	if summary, ok := h.state.LastSummary(); ok {
		response.LastSummary = &summary
	}

	c.JSON(http.StatusOK, response)
}
