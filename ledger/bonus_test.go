package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusTableMultiplier(t *testing.T) {
	tests := []struct {
		streak int
		want   int
	}{
		{0, 1},
		{1, 1},
		{6, 1},
		{7, 2},
		{14, 2},
		{29, 1},
		{30, 3},
		{210, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultBonusTable.Multiplier(tt.streak), "streak %d", tt.streak)
	}
}

func TestParseBonusTable(t *testing.T) {
	table, err := ParseBonusTable(" 30:3, 7:2 ")
	require.NoError(t, err)
	assert.Equal(t, DefaultBonusTable, table)

	empty, err := ParseBonusTable("")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Equal(t, 1, empty.Multiplier(7))

	for _, bad := range []string{"7", "7:x", "0:2", "7:0", "-1:2"} {
		_, err := ParseBonusTable(bad)
		assert.Error(t, err, bad)
	}
}
