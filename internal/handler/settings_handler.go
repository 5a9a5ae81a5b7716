package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetSettings returns the live settings
func (h *Handlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Settings())
}

// UpdateSettings changes any of the live settings. Omitted fields keep their value.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	settings := h.state.Settings()
	if req.DelaySeconds != nil {
		settings.DelaySeconds = *req.DelaySeconds
	}
	if req.IntervalMinutes != nil {
		settings.IntervalMinutes = *req.IntervalMinutes
	}
	if req.MaxMessages != nil {
		settings.MaxMessages = *req.MaxMessages
	}

	if err := h.state.UpdateSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_settings",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	logrus.Infof("Settings updated: delay=%ds interval=%dm max=%d",
		settings.DelaySeconds, settings.IntervalMinutes, settings.MaxMessages)
	c.JSON(http.StatusOK, settings)
}
