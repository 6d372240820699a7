package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attendance is one immutable check-in of a user on a calendar date.
// The composite unique index is the last line of defence against double check-ins.
type Attendance struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;uniqueIndex:idx_attendance_user_date,priority:1" json:"user_id"`
	AttendanceDate  datatypes.Date `gorm:"not null;uniqueIndex:idx_attendance_user_date,priority:2" json:"attendance_date"`
	PointsEarned    int            `gorm:"not null;default:0" json:"points_earned"`
	BonusMultiplier *int           `json:"bonus_multiplier"`
	StreakDays      int            `gorm:"not null;default:1" json:"streak_days"`
	CreatedAt       time.Time      `gorm:"not null;autoCreateTime:false;<-:create" json:"created_at"`
}

// TableName pins the table name used by the ledger store.
func (Attendance) TableName() string {
	return "attendances"
}
