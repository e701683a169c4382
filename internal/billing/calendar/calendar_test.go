package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceMonthArithmetic(t *testing.T) {
	cases := []struct {
		name   string
		period Period
		from   time.Time
		want   time.Time
	}{
		{"monthly mid month", Monthly(), Date(2021, 2, 20), Date(2021, 3, 20)},
		{"monthly year rollover", Monthly(), Date(2020, 12, 15), Date(2021, 1, 15)},
		{"jan 31 to feb non leap", Monthly(), Date(2021, 1, 31), Date(2021, 2, 28)},
		{"jan 30 to feb leap", Monthly(), Date(2020, 1, 30), Date(2020, 2, 29)},
		{"day 31 into thirty day month", Monthly(), Date(2021, 3, 31), Date(2021, 4, 30)},
		{"quarterly", Quarterly(), Date(2020, 2, 4), Date(2020, 5, 4)},
		{"quarterly clamps", Quarterly(), Date(2020, 11, 30), Date(2021, 2, 28)},
		{"half year", HalfYearly(), Date(2020, 8, 31), Date(2021, 2, 28)},
		{"yearly leap day", Yearly(), Date(2020, 2, 29), Date(2021, 2, 28)},
		{"custom days", Days(14), Date(2021, 2, 20), Date(2021, 3, 6)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Advance(tc.period, tc.from)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAdvanceRejectsInvalidPeriods(t *testing.T) {
	_, err := Advance(Days(0), Date(2021, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidCustomDay)

	_, err = Advance(Period{Unit: "WEEK"}, Date(2021, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 28, DaysBetween(Date(2021, 2, 1), Date(2021, 3, 1)))
	assert.Equal(t, 29, DaysBetween(Date(2020, 2, 1), Date(2020, 3, 1)))
	assert.Equal(t, 0, DaysBetween(Date(2021, 2, 1), Date(2021, 2, 1)))
	assert.Equal(t, 366, DaysBetween(Date(2020, 1, 1), Date(2021, 1, 1)))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("quarter", nil)
	require.NoError(t, err)
	assert.Equal(t, Quarterly(), p)

	days := 10
	p, err = ParsePeriod("CUSTOM", &days)
	require.NoError(t, err)
	assert.Equal(t, Days(10), p)

	_, err = ParsePeriod("CUSTOM", nil)
	assert.ErrorIs(t, err, ErrInvalidCustomDay)
}

func TestTruncateDropsTimeOfDay(t *testing.T) {
	in := time.Date(2021, 5, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, Date(2021, 5, 1), Truncate(in))
}
