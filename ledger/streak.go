package ledger

import "sort"

// daySet is a set of civil days keyed by day number.
type daySet map[int64]struct{}

func newDaySet(days []int64) daySet {
	s := make(daySet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s daySet) has(d int64) bool {
	_, ok := s[d]
	return ok
}

// runEndingAt counts consecutive attended days ending at (and including) end.
func (s daySet) runEndingAt(end int64) int {
	n := 0
	for d := end; s.has(d); d-- {
		n++
	}
	return n
}

// nextStreak returns the streak length a check-in on target would reach.
// Only days strictly before target are considered.
func nextStreak(days []int64, target int64) int {
	prior := int64(-1 << 62)
	for _, d := range days {
		if d < target && d > prior {
			prior = d
		}
	}
	if prior != target-1 {
		return 1
	}
	before := make([]int64, 0, len(days))
	for _, d := range days {
		if d < target {
			before = append(before, d)
		}
	}
	return newDaySet(before).runEndingAt(prior) + 1
}

// currentStreak is the streak as of today: the run ending today if today is
// attended, otherwise the run ending yesterday, otherwise zero.
func currentStreak(days []int64, today int64) int {
	s := newDaySet(days)
	if s.has(today) {
		return s.runEndingAt(today)
	}
	return s.runEndingAt(today - 1)
}

func sortDays(days []int64) {
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
}
