package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		consumed int64
		want     Status
	}{
		{0, StatusOK},
		{699, StatusOK},
		{700, StatusWarning},
		{900, StatusCritical},
		{1000, StatusExceeded},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.consumed, 1000), tc.consumed)
	}
	assert.Equal(t, StatusExceeded, StatusFor(0, 0))
}

func TestRemainingIsDerived(t *testing.T) {
	q := DailyQuota{LimitML: 1000, ConsumedML: 700}
	assert.Equal(t, int64(300), q.RemainingML())
	q.ConsumedML = 1200
	assert.Zero(t, q.RemainingML())
}

func TestDayOfAndShiftDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01", DayOf(now, time.UTC, 0))
	assert.Equal(t, "2024-02-29", DayOf(now, time.UTC, time.Hour))

	prev, err := ShiftDay("2024-03-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", prev)

	_, err = ShiftDay("not-a-day", 1)
	assert.Error(t, err)
}
