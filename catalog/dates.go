package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseYears expands "YYYY" or "Y1-Y2" into the inclusive list of years
func ParseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	first, last, isRange := strings.Cut(s, "-")
	y1, err := parseYear(first)
	if err != nil {
		return nil, fmt.Errorf("ParseYears[%s]: %w", s, err)
	}
	y2 := y1
	if isRange {
		if y2, err = parseYear(last); err != nil {
			return nil, fmt.Errorf("ParseYears[%s]: %w", s, err)
		}
	}
	if y2 < y1 {
		return nil, fmt.Errorf("ParseYears[%s]: %d is after %d", s, y1, y2)
	}
	years := make([]int, 0, y2-y1+1)
	for y := y1; y <= y2; y++ {
		years = append(years, y)
	}
	return years, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	if y < 1 || y > 9999 {
		return 0, fmt.Errorf("year out of range: %d", y)
	}
	return y, nil
}

// LastDayOfMonth returns the number of days of the month, leap years included
func LastDayOfMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseMonth accepts a month number (1-12) or an english name ("Feb", "february")
func ParseMonth(s string) (time.Month, error) {
	s = strings.TrimSpace(s)
	if m, err := strconv.Atoi(s); err == nil {
		if m < 1 || m > 12 {
			return 0, fmt.Errorf("ParseMonth: month out of range: %d", m)
		}
		return time.Month(m), nil
	}
	for _, layout := range []string{"Jan", "January"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Month(), nil
		}
	}
	return 0, fmt.Errorf("ParseMonth: invalid month %q", s)
}

// MonthRange is an inclusive range of months, applied to every year
type MonthRange struct {
	First, Last time.Month
}

// AllMonths is the default range
var AllMonths = MonthRange{First: time.January, Last: time.December}

// ParseMonthRange parses the optional start and end months (empty strings keep the default)
func ParseMonthRange(first, last string) (MonthRange, error) {
	r := AllMonths
	var err error
	if first != "" {
		if r.First, err = ParseMonth(first); err != nil {
			return r, err
		}
	}
	if last != "" {
		if r.Last, err = ParseMonth(last); err != nil {
			return r, err
		}
	}
	if r.Last < r.First {
		return r, fmt.Errorf("ParseMonthRange: %s is after %s", r.First, r.Last)
	}
	return r, nil
}

// ParseDate parses a date in any common layout (2024-06-01, 20240601, 06/01/2024...)
func ParseDate(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDate: %w", err)
	}
	return truncateDay(t), nil
}

// DateRange is an inclusive range of days. A zero bound is unbounded.
type DateRange struct {
	From, To time.Time
}

// ParseDateRange parses the optional start and end dates
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	var err error
	if from != "" {
		if r.From, err = ParseDate(from); err != nil {
			return r, err
		}
	}
	if to != "" {
		if r.To, err = ParseDate(to); err != nil {
			return r, err
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("ParseDateRange: %s is after %s", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	}
	return r, nil
}

// Contains returns whether the day is in the range
func (r DateRange) Contains(day time.Time) bool {
	return (r.From.IsZero() || !day.Before(r.From)) && (r.To.IsZero() || !day.After(r.To))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
