package alerting

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tphakala/logwatch/internal/datastore/entities"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
)

const (
	// saveHistoryTimeout is the context deadline for persisting alert history.
	saveHistoryTimeout = 3 * time.Second
	// cleanupTimeout is the context deadline for the periodic history deletion.
	cleanupTimeout = 5 * time.Second
	// cleanupInterval is how often the history cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
)

// HistoryRecorder journals bus events to the alert history repository.
type HistoryRecorder struct {
	repo repository.AlertHistoryRepository
	log  logger.Logger

	mu          sync.Mutex
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewHistoryRecorder creates a recorder writing to repo.
func NewHistoryRecorder(repo repository.AlertHistoryRepository, log logger.Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, log: log}
}

// Record implements AlertEventHandler.
func (h *HistoryRecorder) Record(event *AlertEvent) {
	lines := ""
	if len(event.Lines) > 0 {
		data, err := json.Marshal(event.Lines)
		if err != nil {
			h.log.Error("failed to marshal summary lines", logger.Error(err))
		} else {
			lines = string(data)
		}
	}

	entry := &entities.AlertHistory{
		EventID:   event.ID,
		Kind:      event.Kind,
		Message:   event.Message,
		Rate:      event.Rate,
		Threshold: event.Threshold,
		Lines:     lines,
		FiredAt:   event.Timestamp.UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveHistoryTimeout)
	defer cancel()
	if err := h.repo.SaveHistory(ctx, entry); err != nil {
		h.log.Error("failed to save alert history",
			logger.String("event_id", event.ID),
			logger.String("kind", event.Kind),
			logger.Error(err))
	}
}

// StartCleanup starts a background goroutine that hourly deletes history
// entries recorded more than retention ago. A zero retention disables cleanup.
func (h *HistoryRecorder) StartCleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	// Stop any existing cleanup goroutine before starting a new one.
	h.Stop()

	h.mu.Lock()
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	h.cleanupStop, h.cleanupDone = stopCh, doneCh
	h.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.cleanup(retention)
			case <-stopCh:
				return
			}
		}
	}()
}

func (h *HistoryRecorder) cleanup(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	deleted, err := h.repo.DeleteHistoryBefore(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		h.log.Error("alert history cleanup failed", logger.Error(err))
		return
	}
	if deleted > 0 {
		h.log.Info("alert history cleanup completed",
			logger.Int64("deleted", deleted),
			logger.Duration("retention", retention))
	}
}

// Stop ends the cleanup goroutine, if running, and waits for it to exit.
func (h *HistoryRecorder) Stop() {
	h.mu.Lock()
	stopCh, doneCh := h.cleanupStop, h.cleanupDone
	h.cleanupStop, h.cleanupDone = nil, nil
	h.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}
