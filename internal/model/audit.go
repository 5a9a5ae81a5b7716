package model

import (
	"time"

	"gorm.io/gorm"
)

// Card statuses recorded in the audit history
const (
	CardStatusInserted   = "inserted"
	CardStatusNotProject = "not_project"
	CardStatusFailed     = "failed"
)

// CardLog represents the outcome of running one message through the pipeline
type CardLog struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID     string         `json:"run_id" gorm:"type:varchar(36);index"`
	MessageID string         `json:"message_id" gorm:"type:varchar(255);not null;index"`
	Subject   string         `json:"subject" gorm:"type:varchar(998)"`
	Title     string         `json:"title" gorm:"type:varchar(512)"`
	CardID    string         `json:"card_id" gorm:"type:varchar(64);index"`
	Status    string         `json:"status" gorm:"type:varchar(50);not null"`
	ErrorMsg  string         `json:"error_msg" gorm:"type:text"`
	Files     int            `json:"files"`
	Links     int            `json:"links"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for CardLog
func (CardLog) TableName() string {
	return "card_logs"
}

// PassLog records the summary of one pipeline pass
type PassLog struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID      string    `json:"run_id" gorm:"type:varchar(36);uniqueIndex"`
	Trigger    string    `json:"trigger" gorm:"type:varchar(32);not null"`
	Fetched    int       `json:"fetched"`
	Processed  int       `json:"processed"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// TableName specifies the table name for PassLog
func (PassLog) TableName() string {
	return "pass_logs"
}
