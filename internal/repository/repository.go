package repository

import (
	"fmt"

	"gorm.io/gorm"

	"smart-card-relay-go/internal/model"
)

// Repository stores the audit history of cards and passes
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RecordCard(entry *model.CardLog) error {
	result := r.db.Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to record card outcome: %w", result.Error)
	}
	return nil
}

func (r *Repository) RecordPass(entry *model.PassLog) error {
	result := r.db.Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to record pass: %w", result.Error)
	}
	return nil
}

// ListCardLogs returns one page of card outcomes, newest first, with the total count
func (r *Repository) ListCardLogs(page, limit int) ([]model.CardLog, int64, error) {
	var total int64
	if err := r.db.Model(&model.CardLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count card logs: %w", err)
	}

	var logs []model.CardLog
	offset := (page - 1) * limit
	result := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to get card logs: %w", result.Error)
	}
	return logs, total, nil
}

// ListCardLogsByMessage returns every outcome recorded for one message id
func (r *Repository) ListCardLogsByMessage(messageID string) ([]model.CardLog, error) {
	var logs []model.CardLog
	result := r.db.Where("message_id = ?", messageID).Order("created_at DESC").Find(&logs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get card logs for %s: %w", messageID, result.Error)
	}
	return logs, nil
}

// ListPassLogs returns the newest passes
func (r *Repository) ListPassLogs(limit int) ([]model.PassLog, error) {
	var logs []model.PassLog
	result := r.db.Order("started_at DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get pass logs: %w", result.Error)
	}
	return logs, nil
}
