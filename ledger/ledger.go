// Package ledger owns the append-only record of daily attendance check-ins and
// computes streaks, monthly summaries and point totals from it on read.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/hanapath/rewards/models"
)

// DefaultBasePoints is credited for every check-in before the bonus multiplier.
const DefaultBasePoints = 50

// Hook runs after a check-in has been stored. Its failure never undoes the check-in.
type Hook interface {
	AfterCheckIn(ctx context.Context, rec models.Attendance) error
}

// Options configures a Ledger. Zero values fall back to defaults.
type Options struct {
	BasePoints int
	Bonus      BonusTable
	Location   *time.Location
	Now        func() time.Time
	Logger     *zap.Logger
	Hook       Hook
}

// Ledger implements check-in and the derived attendance views.
type Ledger struct {
	store Store
	users UserDirectory

	basePoints int
	bonus      BonusTable
	loc        *time.Location
	now        func() time.Time
	log        *zap.Logger
	hook       Hook
}

// CheckInResult is the newly created record plus a human readable message.
type CheckInResult struct {
	Record  models.Attendance
	Message string
}

// MonthlySummary describes one calendar month of a user's attendance.
type MonthlySummary struct {
	Year            int   `json:"year"`
	Month           int   `json:"month"`
	AttendedDays    []int `json:"attended_days"`
	TotalPoints     int   `json:"total_points"`
	ConsecutiveDays int   `json:"consecutive_days"`
	TodayAttended   bool  `json:"today_attended"`
}

// Stats aggregates a user's whole attendance history.
type Stats struct {
	TotalAttendanceDays int `json:"total_attendance_days"`
	CurrentMonthPoints  int `json:"current_month_points"`
	ConsecutiveDays     int `json:"consecutive_days"`
	TotalPoints         int `json:"total_points"`
}

// New creates a Ledger over store and users.
func New(store Store, users UserDirectory, opts Options) *Ledger {
	l := &Ledger{
		store:      store,
		users:      users,
		basePoints: opts.BasePoints,
		bonus:      opts.Bonus,
		loc:        opts.Location,
		now:        opts.Now,
		log:        opts.Logger,
		hook:       opts.Hook,
	}
	if l.basePoints <= 0 {
		l.basePoints = DefaultBasePoints
	}
	if l.bonus == nil {
		l.bonus = DefaultBonusTable
	}
	if l.loc == nil {
		l.loc = time.Local
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// Today returns the current calendar day in the ledger's time zone.
func (l *Ledger) Today() time.Time {
	return civilDay(l.now(), l.loc)
}

// CheckIn records attendance of userID on date, or today when date is nil.
// The year, month and day of date are taken as written.
func (l *Ledger) CheckIn(ctx context.Context, userID uint, date *time.Time) (*CheckInResult, error) {
	today := l.Today()
	day := today
	if date != nil {
		day = asDay(*date)
	}
	if day.After(today) {
		return nil, &Error{Kind: ErrInvalidDate, UserID: userID, Date: FormatDate(day)}
	}
	if err := l.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := l.store.FindByUserAndDate(ctx, userID, day)
	if err != nil {
		return nil, l.storageError(userID, day, err)
	}
	if existing != nil {
		return nil, alreadyCheckedIn(userID, day, existing)
	}

	all, err := l.store.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, l.storageError(userID, day, err)
	}
	days, err := l.attendedDays(userID, all)
	if err != nil {
		return nil, err
	}

	streak := nextStreak(days, dayNumber(day))
	multiplier := l.bonus.Multiplier(streak)
	rec := models.Attendance{
		UserID:          userID,
		AttendanceDate:  datatypes.Date(day),
		PointsEarned:    l.basePoints * multiplier,
		BonusMultiplier: &multiplier,
		StreakDays:      streak,
		CreatedAt:       l.now(),
	}

	if err := l.store.Insert(ctx, &rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent check-in; report it like the pre-check does.
			winner, ferr := l.store.FindByUserAndDate(context.WithoutCancel(ctx), userID, day)
			if ferr != nil {
				l.log.Warn("attendance winner re-read failed",
					zap.Uint("user_id", userID),
					zap.String("date", FormatDate(day)),
					zap.Error(ferr),
				)
				winner = nil
			}
			return nil, alreadyCheckedIn(userID, day, winner)
		}
		return nil, l.storageError(userID, day, err)
	}

	l.log.Info("attendance checked in",
		zap.Uint("user_id", userID),
		zap.String("date", FormatDate(day)),
		zap.Int("streak", streak),
		zap.Int("points", rec.PointsEarned),
	)

	if l.hook != nil {
		if err := l.hook.AfterCheckIn(context.WithoutCancel(ctx), rec); err != nil {
			l.log.Warn("attendance reward hook failed",
				zap.Uint("user_id", userID),
				zap.Uint("record_id", rec.ID),
				zap.Error(err),
			)
		}
	}

	return &CheckInResult{Record: rec, Message: checkInMessage(streak, multiplier, rec.PointsEarned)}, nil
}

// GetMonthlySummary reads the user's records within year/month.
func (l *Ledger) GetMonthlySummary(ctx context.Context, userID uint, year, month int) (*MonthlySummary, error) {
	if year < 1 || month < 1 || month > 12 {
		return nil, &Error{Kind: ErrInvalidDate, UserID: userID, Date: fmt.Sprintf("%04d-%02d", year, month)}
	}
	if err := l.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	inMonth, err := l.store.FindForUserBetween(ctx, userID, from, to)
	if err != nil {
		return nil, l.storageError(userID, from, err)
	}
	if _, err := l.attendedDays(userID, inMonth); err != nil {
		return nil, err
	}
	all, err := l.store.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, l.storageError(userID, from, err)
	}
	days, err := l.attendedDays(userID, all)
	if err != nil {
		return nil, err
	}

	summary := &MonthlySummary{Year: year, Month: month, AttendedDays: make([]int, 0, len(inMonth))}
	for _, rec := range inMonth {
		summary.AttendedDays = append(summary.AttendedDays, RecordDay(rec.AttendanceDate).Day())
		summary.TotalPoints += rec.PointsEarned
	}
	today := dayNumber(l.Today())
	summary.ConsecutiveDays = currentStreak(days, today)
	summary.TodayAttended = newDaySet(days).has(today)
	return summary, nil
}

// GetStats aggregates the user's whole history.
func (l *Ledger) GetStats(ctx context.Context, userID uint) (*Stats, error) {
	if err := l.ensureUser(ctx, userID); err != nil {
		return nil, err
	}
	today := l.Today()
	all, err := l.store.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, l.storageError(userID, today, err)
	}
	days, err := l.attendedDays(userID, all)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalAttendanceDays: len(all)}
	for _, rec := range all {
		stats.TotalPoints += rec.PointsEarned
		d := RecordDay(rec.AttendanceDate)
		if d.Year() == today.Year() && d.Month() == today.Month() {
			stats.CurrentMonthPoints += rec.PointsEarned
		}
	}
	stats.ConsecutiveDays = currentStreak(days, dayNumber(today))
	return stats, nil
}

// TodayAttended reports whether the user already checked in today.
func (l *Ledger) TodayAttended(ctx context.Context, userID uint) (bool, error) {
	if err := l.ensureUser(ctx, userID); err != nil {
		return false, err
	}
	today := l.Today()
	rec, err := l.store.FindByUserAndDate(ctx, userID, today)
	if err != nil {
		return false, l.storageError(userID, today, err)
	}
	return rec != nil, nil
}

func (l *Ledger) ensureUser(ctx context.Context, userID uint) error {
	ok, err := l.users.UserExists(ctx, userID)
	if err != nil {
		return l.storageError(userID, time.Time{}, err)
	}
	if !ok {
		return &Error{Kind: ErrUserNotFound, UserID: userID}
	}
	return nil
}

// attendedDays extracts sorted day numbers and fails if any date repeats.
func (l *Ledger) attendedDays(userID uint, recs []models.Attendance) ([]int64, error) {
	days := make([]int64, 0, len(recs))
	seen := make(daySet, len(recs))
	for _, rec := range recs {
		d := RecordDay(rec.AttendanceDate)
		n := dayNumber(d)
		if seen.has(n) {
			err := &Error{Kind: ErrInvariantViolation, UserID: userID, Date: FormatDate(d), RecordID: rec.ID}
			l.log.Error("attendance invariant violated", zap.Uint("user_id", userID), zap.String("date", FormatDate(d)), zap.Uint("record_id", rec.ID))
			return nil, err
		}
		seen[n] = struct{}{}
		days = append(days, n)
	}
	sortDays(days)
	return days, nil
}

func (l *Ledger) storageError(userID uint, day time.Time, err error) error {
	e := &Error{Kind: storageKind(err), UserID: userID, Err: err}
	if !day.IsZero() {
		e.Date = FormatDate(day)
	}
	if e.Kind == ErrInvariantViolation {
		l.log.Error("attendance invariant violated", zap.Uint("user_id", userID), zap.String("date", e.Date), zap.Error(err))
	} else {
		l.log.Warn("attendance storage call failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return e
}

func alreadyCheckedIn(userID uint, day time.Time, existing *models.Attendance) error {
	e := &Error{Kind: ErrAlreadyCheckedIn, UserID: userID, Date: FormatDate(day)}
	if existing != nil {
		e.RecordID = existing.ID
	}
	return e
}

func checkInMessage(streak, multiplier, points int) string {
	if multiplier > 1 {
		return fmt.Sprintf("bonus awarded: %d-day streak x%d, %d points earned", streak, multiplier, points)
	}
	return fmt.Sprintf("checked in: %d points earned", points)
}
