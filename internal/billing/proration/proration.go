package proration

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoiceengine/internal/billing/calendar"
)

var (
	ErrZeroLengthPeriod = errors.New("zero_length_period")
	ErrInvalidRange     = errors.New("invalid_proration_range")
)

// DefaultPlaces is the number of decimals every prorated slice is rounded to.
const DefaultPlaces int32 = 2

// Mode selects how a price relates to time.
type Mode int

const (
	// PerPeriod prices cover one full invoicing period and are scaled by the billed share of it.
	PerPeriod Mode = iota
	// PerDay prices cover a single day and are multiplied by the billed days.
	PerDay
)

// Amounts is a price split into its flat, unit and VAT parts.
//
// Base is zero for unit-priced components and Unit is zero for flat-priced
// ones. Units is carried through scaling untouched.
type Amounts struct {
	Base  decimal.Decimal
	Unit  decimal.Decimal
	Units decimal.Decimal
	VAT   decimal.Decimal
}

// Net is the amount before VAT.
func (a Amounts) Net() decimal.Decimal {
	return a.Base.Add(a.Unit.Mul(a.Units))
}

// Total is the amount including VAT.
func (a Amounts) Total() decimal.Decimal {
	return a.Net().Add(a.VAT)
}

func (a Amounts) IsZero() bool {
	return a.Total().IsZero() && a.Base.IsZero() && a.Unit.IsZero()
}

// Add sums the price parts of two slices of the same component.
func (a Amounts) Add(b Amounts) Amounts {
	units := a.Units
	if units.IsZero() {
		units = b.Units
	}
	return Amounts{
		Base:  a.Base.Add(b.Base),
		Unit:  a.Unit.Add(b.Unit),
		Units: units,
		VAT:   a.VAT.Add(b.VAT),
	}
}

// Neg flips the sign of every price part.
func (a Amounts) Neg() Amounts {
	return Amounts{Base: a.Base.Neg(), Unit: a.Unit.Neg(), Units: a.Units, VAT: a.VAT.Neg()}
}

// Scale multiplies every price part by num/den and rounds to places.
func (a Amounts) Scale(num, den decimal.Decimal, places int32) Amounts {
	scale := func(v decimal.Decimal) decimal.Decimal {
		if v.IsZero() {
			return v
		}
		return v.Mul(num).Div(den).Round(places)
	}
	return Amounts{Base: scale(a.Base), Unit: scale(a.Unit), Units: a.Units, VAT: scale(a.VAT)}
}

// Calculator scales period prices to partial periods.
type Calculator struct {
	places int32
}

func New(places int32) Calculator {
	if places < 0 {
		places = DefaultPlaces
	}
	return Calculator{places: places}
}

// Default rounds to cents.
func Default() Calculator {
	return New(DefaultPlaces)
}

// Prorate scales full-period amounts to the days from subStart through subEnd,
// both inclusive, of the period [periodStart, periodEnd).
func (c Calculator) Prorate(full Amounts, mode Mode, periodStart, periodEnd, subStart, subEnd time.Time) (Amounts, error) {
	daysInPeriod := calendar.DaysBetween(periodStart, periodEnd)
	if daysInPeriod <= 0 {
		return Amounts{}, ErrZeroLengthPeriod
	}
	daysToBill := calendar.DaysBetween(subStart, subEnd) + 1
	if daysToBill < 0 {
		return Amounts{}, ErrInvalidRange
	}

	days := decimal.NewFromInt(int64(daysToBill))
	if mode == PerDay {
		return full.Scale(days, decimal.NewFromInt(1), c.places), nil
	}
	return full.Scale(days, decimal.NewFromInt(int64(daysInPeriod)), c.places), nil
}

// AmountsBetween sums the amounts owed from start up to, not including, end.
//
// Periods are laid out from anchor in steps of period. Every period fully
// covered contributes the full amounts; partially covered periods are
// prorated, and each slice is rounded on its own before summing.
func (c Calculator) AmountsBetween(full Amounts, mode Mode, period calendar.Period, anchor, start, end time.Time) (Amounts, error) {
	anchor, start, end = calendar.Truncate(anchor), calendar.Truncate(start), calendar.Truncate(end)
	out := Amounts{Units: full.Units}
	if !start.Before(end) {
		return out, nil
	}
	if start.Before(anchor) {
		return Amounts{}, ErrInvalidRange
	}
	if err := period.Validate(); err != nil {
		return Amounts{}, err
	}

	periodStart := anchor
	periodEnd := calendar.MustAdvance(period, periodStart)
	for !periodEnd.After(start) {
		periodStart, periodEnd = periodEnd, calendar.MustAdvance(period, periodEnd)
	}

	for periodStart.Before(end) {
		sliceStart := maxDate(start, periodStart)
		sliceEnd := minDate(end, periodEnd)

		if mode == PerPeriod && sliceStart.Equal(periodStart) && sliceEnd.Equal(periodEnd) {
			out = out.Add(full)
		} else {
			slice, err := c.Prorate(full, mode, periodStart, periodEnd, sliceStart, calendar.AddDays(sliceEnd, -1))
			if err != nil {
				return Amounts{}, err
			}
			out = out.Add(slice)
		}
		periodStart, periodEnd = periodEnd, calendar.MustAdvance(period, periodEnd)
	}
	return out, nil
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
