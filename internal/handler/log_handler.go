package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-card-relay-go/internal/pipeline"
)

const defaultLogLimit = 200

// GetLogs returns the newest lines of the operator log, oldest first
func (h *Handlers) GetLogs(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLogLimit, pipeline.MaxLogEntries)

	c.JSON(http.StatusOK, gin.H{
		"logs":  h.state.Logs(limit),
		"limit": limit,
	})
}

// GetCards returns card outcomes with pagination, or every outcome recorded
// for one message when message_id is given
func (h *Handlers) GetCards(c *gin.Context) {
	if h.audit == nil {
		databaseDisabled(c)
		return
	}

	if messageID := c.Query("message_id"); messageID != "" {
		h.getCardsByMessage(c, messageID)
		return
	}

	page := queryInt(c, "page", 1, 1<<20)
	limit := queryInt(c, "limit", 50, 100)

	cards, total, err := h.audit.ListCardLogs(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch card history",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cards": cards,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *Handlers) getCardsByMessage(c *gin.Context, messageID string) {
	cards, err := h.audit.ListCardLogsByMessage(messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch card history",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cards":      cards,
		"message_id": messageID,
	})
}

// GetPasses returns the newest pass summaries
func (h *Handlers) GetPasses(c *gin.Context) {
	if h.audit == nil {
		databaseDisabled(c)
		return
	}

	limit := queryInt(c, "limit", 20, 100)
	passes, err := h.audit.ListPassLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch pass history",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"passes": passes})
}

func databaseDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "database_disabled",
		Message: "Audit history requires the database to be enabled",
		Code:    http.StatusServiceUnavailable,
	})
}
