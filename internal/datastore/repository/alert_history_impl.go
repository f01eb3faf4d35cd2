package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tphakala/logwatch/internal/datastore/entities"
	"gorm.io/gorm"
)

// alertHistoryRepository implements AlertHistoryRepository.
type alertHistoryRepository struct {
	db *gorm.DB
}

// NewAlertHistoryRepository creates a new AlertHistoryRepository.
func NewAlertHistoryRepository(db *gorm.DB) AlertHistoryRepository {
	return &alertHistoryRepository{db: db}
}

// SaveHistory saves an alert history entry.
func (r *alertHistoryRepository) SaveHistory(ctx context.Context, history *entities.AlertHistory) error {
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("failed to save alert history: %w", err)
	}
	return nil
}

// GetHistoryByEventID returns the entry recorded for a bus event.
func (r *alertHistoryRepository) GetHistoryByEventID(ctx context.Context, eventID string) (*entities.AlertHistory, error) {
	var h entities.AlertHistory
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&h).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("event %s: %w", eventID, ErrAlertHistoryNotFound)
		}
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	return &h, nil
}

// ListHistory returns alert history entries matching the filter with pagination,
// newest first, along with the total number of matching entries.
func (r *alertHistoryRepository) ListHistory(ctx context.Context, filter AlertHistoryFilter) ([]entities.AlertHistory, int64, error) {
	var items []entities.AlertHistory
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.AlertHistory{})
	if filter.Kind != "" {
		countQuery = countQuery.Where("kind = ?", filter.Kind)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert history: %w", err)
	}

	query := r.db.WithContext(ctx).Order("fired_at DESC").Order("id DESC")
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert history: %w", err)
	}
	return items, total, nil
}

// DeleteHistory deletes all alert history entries.
func (r *alertHistoryRepository) DeleteHistory(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&entities.AlertHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert history: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteHistoryBefore deletes alert history entries recorded before the given
// wall-clock time. fired_at is data time and may be arbitrarily old when a
// log is replayed, so it is not used for retention.
func (r *alertHistoryRepository) DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&entities.AlertHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert history before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
