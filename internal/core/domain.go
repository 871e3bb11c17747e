package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Uncategorized is reported for expenses without a category.
const Uncategorized = "Uncategorized"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is one spending event as held in a snapshot. Records are
	// owned by the upstream API and treated as immutable here.
	Expense struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Amount      Money  `json:"amount"`
		Date        Date   `json:"date"`
		Category    string `json:"category"`
		Description string `json:"description,omitempty"`
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrZeroDate      = errors.New("date cannot be zero")
)

var monthAbbrevs = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthAbbrev returns the three-letter abbreviation for month 1-12,
// or "" when out of range.
func MonthAbbrev(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthAbbrevs[month-1]
}

// ParseMonthAbbrev maps "Jan".."Dec" (any case) to 1-12.
func ParseMonthAbbrev(s string) (int, bool) {
	s = strings.TrimSpace(s)
	for i, m := range monthAbbrevs {
		if strings.EqualFold(s, m) {
			return i + 1, true
		}
	}
	return 0, false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// MonthAbbrev returns the abbreviation of the date's month.
func (d Date) MonthAbbrev() string {
	return MonthAbbrev(d.Month())
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts any layout ParseDate does.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// dateLayouts are tried in order. RFC3339Nano also matches timestamps
// without fractional seconds.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate reads an ISO-8601 date or timestamp. The calendar day is taken
// in the timestamp's own offset.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("parse date %q: unsupported layout", s)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping t's own location for the
// day boundary.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Validate rejects negative amounts. Zero is a valid expense amount.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m+o, saturating at the largest representable amount.
// Amounts are never negative, so only the upper bound can be crossed.
func (m Money) Add(o Money) Money {
	if o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents {
		return Money{Cents: math.MaxInt64}
	}
	return Money{Cents: m.Cents + o.Cents}
}

// CategoryName returns the trimmed category, or Uncategorized when blank.
func (e Expense) CategoryName() string {
	c := strings.TrimSpace(e.Category)
	if c == "" {
		return Uncategorized
	}
	return c
}

// Label is the text shown for an expense: its title, falling back to the
// category.
func (e Expense) Label() string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	return e.CategoryName()
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	return nil
}
