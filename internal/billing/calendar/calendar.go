package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PeriodUnit is the cadence at which a contract is invoiced.
type PeriodUnit string

const (
	Month    PeriodUnit = "MONTH"
	Quarter  PeriodUnit = "QUARTER"
	HalfYear PeriodUnit = "HALF_YEAR"
	Year     PeriodUnit = "YEAR"
	Custom   PeriodUnit = "CUSTOM"
)

var (
	ErrInvalidPeriod    = errors.New("invalid_invoicing_period")
	ErrInvalidCustomDay = errors.New("invalid_custom_period_days")
)

// Period is an invoicing cadence. Days is only meaningful for Custom.
type Period struct {
	Unit PeriodUnit
	Days int
}

func Monthly() Period    { return Period{Unit: Month} }
func Quarterly() Period  { return Period{Unit: Quarter} }
func HalfYearly() Period { return Period{Unit: HalfYear} }
func Yearly() Period     { return Period{Unit: Year} }
func Days(n int) Period  { return Period{Unit: Custom, Days: n} }

func (p Period) String() string {
	if p.Unit == Custom {
		return fmt.Sprintf("%s(%d)", p.Unit, p.Days)
	}
	return string(p.Unit)
}

// Validate reports whether the period can be used to advance dates.
func (p Period) Validate() error {
	switch p.Unit {
	case Month, Quarter, HalfYear, Year:
		return nil
	case Custom:
		if p.Days <= 0 {
			return ErrInvalidCustomDay
		}
		return nil
	default:
		return ErrInvalidPeriod
	}
}

// ParsePeriod resolves a stored period unit and optional day count.
func ParsePeriod(unit string, days *int) (Period, error) {
	p := Period{Unit: PeriodUnit(strings.ToUpper(strings.TrimSpace(unit)))}
	if p.Unit == Custom {
		if days == nil {
			return Period{}, ErrInvalidCustomDay
		}
		p.Days = *days
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

func (p Period) months() int {
	switch p.Unit {
	case Month:
		return 1
	case Quarter:
		return 3
	case HalfYear:
		return 6
	case Year:
		return 12
	default:
		return 0
	}
}

// Date returns the UTC midnight for the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day, keeping the calendar day in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return Date(y, m, d)
}

// AddDays shifts a calendar day by n days.
func AddDays(t time.Time, n int) time.Time {
	return Truncate(t).AddDate(0, 0, n)
}

// DaysBetween counts whole days from a to b; b is exclusive.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// Advance returns the start of the period that follows the one starting at from.
//
// Month arithmetic keeps the source day where the target month allows it;
// days past the end of February land on 28 (29 in leap years) and day 31 lands
// on 30 in thirty-day months.
func Advance(p Period, from time.Time) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}
	from = Truncate(from)
	if p.Unit == Custom {
		return AddDays(from, p.Days), nil
	}

	year, month, day := from.Date()
	total := int(month) - 1 + p.months()
	year += total / 12
	month = time.Month(total%12 + 1)

	if last := daysIn(year, month); day > last {
		day = last
	}
	return Date(year, month, day), nil
}

// MustAdvance is Advance for periods already known to be valid.
func MustAdvance(p Period, from time.Time) time.Time {
	next, err := Advance(p, from)
	if err != nil {
		panic(err)
	}
	return next
}

func daysIn(year int, month time.Month) int {
	return Date(year, month+1, 1).AddDate(0, 0, -1).Day()
}
