package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BonusRule awards Multiplier on every Every-th consecutive day.
type BonusRule struct {
	Every      int
	Multiplier int
}

// BonusTable maps streak length to a point multiplier.
type BonusTable []BonusRule

// DefaultBonusTable doubles points on every 7th day and triples them on every 30th.
var DefaultBonusTable = BonusTable{{Every: 7, Multiplier: 2}, {Every: 30, Multiplier: 3}}

// Multiplier returns the largest multiplier whose rule matches streak, or 1.
func (t BonusTable) Multiplier(streak int) int {
	m := 1
	if streak <= 0 {
		return m
	}
	for _, r := range t {
		if r.Every > 0 && streak%r.Every == 0 && r.Multiplier > m {
			m = r.Multiplier
		}
	}
	return m
}

// ParseBonusTable parses "every:multiplier" pairs separated by commas, e.g. "7:2,30:3".
// An empty string yields an empty table (multiplier is always 1).
func ParseBonusTable(s string) (BonusTable, error) {
	t := BonusTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		every, mult, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("bonus rule %q: want every:multiplier", part)
		}
		e, err := strconv.Atoi(strings.TrimSpace(every))
		if err != nil || e <= 0 {
			return nil, fmt.Errorf("bonus rule %q: invalid day interval", part)
		}
		m, err := strconv.Atoi(strings.TrimSpace(mult))
		if err != nil || m <= 0 {
			return nil, fmt.Errorf("bonus rule %q: invalid multiplier", part)
		}
		t = append(t, BonusRule{Every: e, Multiplier: m})
	}
	sort.Slice(t, func(i, j int) bool { return t[i].Every < t[j].Every })
	return t, nil
}
