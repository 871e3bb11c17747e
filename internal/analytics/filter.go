// Package analytics derives spending views from a snapshot of expenses.
//
// Every function here is a pure pass over its arguments: inputs are never
// mutated and each call builds fresh output, so results can be shared
// between goroutines and cached freely.
package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ledgerlens/internal/core"
)

// AllMonths is the month sentinel meaning "no month filter".
const AllMonths = "All"

var (
	ErrMissingYear  = errors.New("year is required")
	ErrInvalidYear  = errors.New("invalid year")
	ErrInvalidMonth = errors.New("invalid month")
)

// Filter selects expenses by calendar year and, optionally, month.
type Filter struct {
	Year  int    `json:"year"`
	Month string `json:"month"` // "All" or "Jan".."Dec"
}

// NewFilter builds a filter for year and a month number (0 for all months).
func NewFilter(year, month int) Filter {
	if month < 1 || month > 12 {
		return Filter{Year: year, Month: AllMonths}
	}
	return Filter{Year: year, Month: core.MonthAbbrev(month)}
}

// ParseFilter reads a filter from its textual form. The month may be empty
// or "All", an abbreviation in any case, or a number 1-12.
func ParseFilter(year, month string) (Filter, error) {
	year = strings.TrimSpace(year)
	if year == "" {
		return Filter{}, ErrMissingYear
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 1 || y > 9999 {
		return Filter{}, fmt.Errorf("%w: %q", ErrInvalidYear, year)
	}

	month = strings.TrimSpace(month)
	if month == "" || strings.EqualFold(month, AllMonths) {
		return Filter{Year: y, Month: AllMonths}, nil
	}
	if m, ok := core.ParseMonthAbbrev(month); ok {
		return NewFilter(y, m), nil
	}
	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return NewFilter(y, m), nil
	}
	return Filter{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
}

// AllYear reports whether the filter spans the whole year.
func (f Filter) AllYear() bool {
	return f.Month == "" || f.Month == AllMonths
}

// Key identifies the filter in caches.
func (f Filter) Key() string {
	m := f.Month
	if f.AllYear() {
		m = AllMonths
	}
	return strconv.Itoa(f.Year) + "/" + m
}

// Matches reports whether e falls in the filter's year and month.
func (f Filter) Matches(e core.Expense) bool {
	if e.Date.IsZero() || e.Date.Year() != f.Year {
		return false
	}
	return f.AllYear() || e.Date.MonthAbbrev() == f.Month
}

// Apply returns the matching expenses in input order.
func (f Filter) Apply(expenses []core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// DayFilter narrows an expense list by month number and day of month.
// Zero fields do not filter.
type DayFilter struct {
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// ParseDayFilter reads optional month (1-12) and day (1-31) values.
func ParseDayFilter(month, day string) (DayFilter, error) {
	var f DayFilter
	if s := strings.TrimSpace(month); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			return DayFilter{}, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
		}
		f.Month = m
	}
	if s := strings.TrimSpace(day); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 1 || d > 31 {
			return DayFilter{}, fmt.Errorf("%w: %q", core.ErrInvalidDay, day)
		}
		f.Day = d
	}
	return f, nil
}

// FilterByDay returns the expenses matching f in input order.
func FilterByDay(expenses []core.Expense, f DayFilter) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		if f.Month != 0 && e.Date.Month() != f.Month {
			continue
		}
		if f.Day != 0 && e.Date.Day() != f.Day {
			continue
		}
		out = append(out, e)
	}
	return out
}
