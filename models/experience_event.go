package models

import (
	"time"

	"gorm.io/datatypes"
)

// Experience event types.
const (
	ExpDailyAttendance = "DAILY_ATTENDANCE"
)

// ExperienceEvent records one EXP award. IdempotencyKey makes re-awards a no-op.
type ExperienceEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UserID         uint           `gorm:"index;not null" json:"user_id"`
	Type           string         `gorm:"size:50;not null" json:"type"`
	Exp            int            `gorm:"not null" json:"exp"`
	SourceID       string         `gorm:"size:100" json:"source_id"`
	IdempotencyKey string         `gorm:"size:150;not null;uniqueIndex" json:"-"`
	EventDate      datatypes.Date `gorm:"not null" json:"event_date"`
	CreatedAt      time.Time      `json:"created_at"`
}
