package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"fanhub/internal/model"
)

// ScheduledItem is a due entity read by the transition runner
type ScheduledItem struct {
	ID          uint64
	PerformerID uint64
	Status      string
	ScheduledAt *time.Time
}

// ScheduledRepository finds and activates time-gated rows of one table
type ScheduledRepository interface {
	// Entity names the kind of row, e.g. "feed"
	Entity() string

	// FindDue lists rows with is_schedule set and scheduled_at <= now
	FindDue(ctx context.Context, now time.Time, limit int) ([]ScheduledItem, error)

	// Activate clears is_schedule and sets the row active. It reports false
	// when another runner activated it first.
	Activate(ctx context.Context, id uint64, now time.Time) (bool, error)
}

type scheduledRepository struct {
	db     *gorm.DB
	table  string
	entity string
}

// NewScheduledFeedRepository returns the scheduled repository of feeds
func NewScheduledFeedRepository(db *gorm.DB) ScheduledRepository {
	return &scheduledRepository{db: db, table: model.Feed{}.TableName(), entity: "feed"}
}

// NewScheduledStreamRepository returns the scheduled repository of streams
func NewScheduledStreamRepository(db *gorm.DB) ScheduledRepository {
	return &scheduledRepository{db: db, table: model.Stream{}.TableName(), entity: "stream"}
}

func (r *scheduledRepository) Entity() string {
	return r.entity
}

// FindDue lists the due rows, oldest schedule first
func (r *scheduledRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]ScheduledItem, error) {
	var items []ScheduledItem
	err := r.db.WithContext(ctx).
		Table(r.table).
		Select("id", "performer_id", "status", "scheduled_at").
		Where("is_schedule = ? AND scheduled_at <= ?", true, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Scan(&items).Error
	return items, err
}

// Activate flips one row out of the scheduled state
func (r *scheduledRepository) Activate(ctx context.Context, id uint64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Table(r.table).
		Where("id = ? AND is_schedule = ?", id, true).
		Updates(map[string]interface{}{
			"is_schedule": false,
			"status":      model.StatusActive,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
