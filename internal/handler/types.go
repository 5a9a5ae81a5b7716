package handler

import (
	"time"

	"smart-card-relay-go/internal/model"
)

// SettingsRequest is a partial update of the live settings
type SettingsRequest struct {
	DelaySeconds    *int `json:"delay_seconds"`
	IntervalMinutes *int `json:"interval_minutes"`
	MaxMessages     *int `json:"max_messages"`
}

// RunOnceResponse carries the summary of a manual pass
type RunOnceResponse struct {
	Summary model.RunSummary `json:"summary"`
	Error   string           `json:"error,omitempty"`
}

// SchedulerStatusResponse represents the repeating-mode status
type SchedulerStatusResponse struct {
	Status      string            `json:"status"`
	NextRun     *time.Time        `json:"next_run,omitempty"`
	LastRun     *time.Time        `json:"last_run,omitempty"`
	LastSummary *model.RunSummary `json:"last_summary,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string     `json:"status"`
	Timestamp    time.Time  `json:"timestamp"`
	Database     string     `json:"database"`
	Scheduler    string     `json:"scheduler"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	ProcessedIDs int        `json:"processed_ids"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
