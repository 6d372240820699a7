package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the owner of attendance records and the wallet that check-in points are credited to.
// ConsecutiveDays is the streak as of LastAttendanceDate.
type User struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Username           string          `gorm:"size:64;not null" json:"username"`
	Points             int             `gorm:"default:0" json:"points"`
	ConsecutiveDays    int             `gorm:"default:0" json:"consecutive_days"`
	LastAttendanceAt   *time.Time      `json:"last_attendance_at"`
	LastAttendanceDate *datatypes.Date `json:"last_attendance_date"`
	TotalExp           int             `gorm:"default:0" json:"total_exp"`
	Level              int             `gorm:"default:1" json:"level"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Level == 0 {
		u.Level = 1
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
