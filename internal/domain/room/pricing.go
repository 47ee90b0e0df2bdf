package room

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// maxStayNights caps quotes so a typo cannot generate a year of nightly rows.
const maxStayNights = 60

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// Nights lists the nights of a stay, i.e. every day in [checkIn, checkOut).
func Nights(checkIn, checkOut time.Time) ([]time.Time, error) {
	checkIn, checkOut = Day(checkIn), Day(checkOut)
	if !checkOut.After(checkIn) {
		return nil, fmt.Errorf("check-out must be after check-in")
	}
	var nights []time.Time
	for d := checkIn; d.Before(checkOut); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
		if len(nights) > maxStayNights {
			return nil, fmt.Errorf("stays longer than %d nights must be booked by phone", maxStayNights)
		}
	}
	return nights, nil
}

// DatesInRange lists every day in [from, to] whose weekday is in weekdays (all days when empty).
func DatesInRange(from, to time.Time, weekdays []time.Weekday) ([]time.Time, error) {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("end date must not be before start date")
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, fmt.Errorf("price ranges are limited to one year")
	}
	allowed := make(map[time.Weekday]bool, len(weekdays))
	for _, w := range weekdays {
		allowed[w] = true
	}
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(allowed) == 0 || allowed[d.Weekday()] {
			out = append(out, d)
		}
	}
	return out, nil
}

// DayPrice is the effective price of one night.
type DayPrice struct {
	Date     time.Time
	Price    int64
	Override bool
}

// PriceDays resolves the effective price of each day: the override when present, else base.
func PriceDays(days []time.Time, basePrice int64, overrides map[time.Time]int64) []DayPrice {
	out := make([]DayPrice, len(days))
	for i, d := range days {
		d = Day(d)
		if p, ok := overrides[d]; ok {
			out[i] = DayPrice{Date: d, Price: p, Override: true}
			continue
		}
		out[i] = DayPrice{Date: d, Price: basePrice}
	}
	return out
}

// MonthDays lists every day of the month containing t.
func MonthDays(t time.Time) []time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Sum adds up the nightly prices.
func Sum(days []DayPrice) int64 {
	var total int64
	for _, d := range days {
		total += d.Price
	}
	return total
}
