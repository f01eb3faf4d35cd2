// Package repository provides data access for the alert history journal.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tphakala/logwatch/internal/datastore/entities"
)

// ErrAlertHistoryNotFound is returned when a history entry does not exist.
var ErrAlertHistoryNotFound = errors.New("alert history entry not found")

// AlertHistoryRepository handles alert history persistence.
type AlertHistoryRepository interface {
	SaveHistory(ctx context.Context, history *entities.AlertHistory) error
	GetHistoryByEventID(ctx context.Context, eventID string) (*entities.AlertHistory, error)
	ListHistory(ctx context.Context, filter AlertHistoryFilter) ([]entities.AlertHistory, int64, error)
	DeleteHistory(ctx context.Context) (int64, error)
	DeleteHistoryBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertHistoryFilter controls history listing queries.
type AlertHistoryFilter struct {
	Kind   string
	Limit  int
	Offset int
}
