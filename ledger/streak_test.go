package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustDay(s string) int64 {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return dayNumber(d)
}

func dayList(ss ...string) []int64 {
	out := make([]int64, 0, len(ss))
	for _, s := range ss {
		out = append(out, mustDay(s))
	}
	return out
}

func TestNextStreak(t *testing.T) {
	tests := []struct {
		name   string
		days   []int64
		target string
		want   int
	}{
		{"first check-in", nil, "2024-03-01", 1},
		{"continues yesterday", dayList("2024-03-01"), "2024-03-02", 2},
		{"gap resets", dayList("2024-03-01", "2024-03-02"), "2024-03-05", 1},
		{"long run", dayList("2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01"), "2024-03-02", 5},
		{"crosses leap day", dayList("2024-02-28", "2024-02-29"), "2024-03-01", 3},
		{"ignores later days", dayList("2024-03-01", "2024-03-03", "2024-03-04"), "2024-03-02", 2},
		{"backfill between runs", dayList("2024-03-01", "2024-03-02", "2024-03-04"), "2024-03-03", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextStreak(tt.days, mustDay(tt.target)))
		})
	}
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name  string
		days  []int64
		today string
		want  int
	}{
		{"no records", nil, "2024-03-05", 0},
		{"ends today", dayList("2024-03-03", "2024-03-04", "2024-03-05"), "2024-03-05", 3},
		{"ends yesterday", dayList("2024-03-03", "2024-03-04"), "2024-03-05", 2},
		{"older than yesterday", dayList("2024-03-01", "2024-03-02"), "2024-03-05", 0},
		{"today after gap", dayList("2024-03-01", "2024-03-02", "2024-03-05"), "2024-03-05", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currentStreak(tt.days, mustDay(tt.today)))
		})
	}
}

func TestCivilDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2024-03-01 20:00 UTC is already March 2nd in Tokyo
	at := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-02", FormatDate(civilDay(at, tokyo)))
	assert.Equal(t, "2024-03-01", FormatDate(civilDay(at, time.UTC)))
	assert.Equal(t, mustDay("2024-03-02")-mustDay("2024-03-01"), int64(1))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	assert.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, "2024-02-29", FormatDate(d))

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)
	_, err = ParseDate("03/01/2024")
	assert.Error(t, err)
}
