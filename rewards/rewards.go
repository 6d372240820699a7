// Package rewards credits check-in points to the user's wallet and awards experience.
package rewards

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hanapath/rewards/models"
)

// AttendanceExp is the experience awarded once per attended day.
const AttendanceExp = 20

// levelThresholds[i] is the total EXP needed for level i+1.
var levelThresholds = []int{0, 300, 900, 1800, 3000}

// Service applies the side effects of a successful check-in.
type Service struct {
	db *gorm.DB
}

// NewService creates a rewards service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AfterCheckIn credits rec.PointsEarned and the attendance EXP to the record's owner.
// Re-running it for the same record does not award EXP twice.
func (s *Service) AfterCheckIn(ctx context.Context, rec models.Attendance) error {
	day := time.Time(rec.AttendanceDate)
	key := IdempotencyKey(rec.UserID, models.ExpDailyAttendance, day)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := models.ExperienceEvent{
			UserID:         rec.UserID,
			Type:           models.ExpDailyAttendance,
			Exp:            AttendanceExp,
			SourceID:       day.Format("2006-01-02"),
			IdempotencyKey: key,
			EventDate:      rec.AttendanceDate,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// already rewarded
			return nil
		}

		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, rec.UserID).Error; err != nil {
			return err
		}
		user.Points += rec.PointsEarned
		user.TotalExp += AttendanceExp
		user.Level = Level(user.TotalExp)
		// a backfilled past day earns its points but leaves the current streak alone
		if user.LastAttendanceDate == nil || !civil(day).Before(civil(time.Time(*user.LastAttendanceDate))) {
			if rec.StreakDays > 0 {
				user.ConsecutiveDays = rec.StreakDays
			}
			at := rec.CreatedAt
			user.LastAttendanceAt = &at
			last := datatypes.Date(civil(day))
			user.LastAttendanceDate = &last
		}
		return tx.Save(&user).Error
	})
}

// civil drops the clock part, keeping the calendar day as midnight UTC.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IdempotencyKey identifies one EXP award of kind for user on day.
func IdempotencyKey(userID uint, kind string, day time.Time) string {
	return fmt.Sprintf("%d:%s:%s", userID, kind, day.Format("2006-01-02"))
}

// Level returns the level reached with totalExp.
func Level(totalExp int) int {
	level := 1
	for i, need := range levelThresholds {
		if totalExp >= need {
			level = i + 1
		}
	}
	return level
}
