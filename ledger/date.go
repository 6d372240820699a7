package ledger

import (
	"time"

	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

// civilDay normalizes t to midnight UTC of its calendar date in loc.
func civilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// asDay keeps the year/month/day of t as written and drops everything else.
func asDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayNumber counts days since the Unix epoch for a civil day.
func dayNumber(day time.Time) int64 {
	return day.Unix() / 86400
}

// ParseDate parses a YYYY-MM-DD string into a civil day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return asDay(t), nil
}

// FormatDate renders a civil day as YYYY-MM-DD.
func FormatDate(day time.Time) string {
	return day.Format(dateLayout)
}

// RecordDay returns the calendar date of a stored attendance record.
func RecordDay(d datatypes.Date) time.Time {
	return asDay(time.Time(d))
}
