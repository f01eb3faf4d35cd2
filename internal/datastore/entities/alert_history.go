// Package entities holds the GORM models for the alert history journal.
package entities

import "time"

// AlertHistory records each traffic transition or summary published on the
// alert bus.
type AlertHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	Kind      string    `gorm:"size:32;not null;index:idx_alert_history_kind_fired,priority:1" json:"kind"`
	Message   string    `gorm:"type:text;default:''" json:"message"`
	Rate      float64   `json:"rate"`
	Threshold float64   `json:"threshold"`
	Lines     string    `gorm:"type:text;default:''" json:"lines"`
	FiredAt   time.Time `gorm:"not null;index:idx_alert_history_kind_fired,priority:2" json:"fired_at"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertHistory) TableName() string {
	return "alert_history"
}
