// Package ingest turns raw expense records from the upstream API, seed
// files or spreadsheets into validated core.Expense values.
//
// Validation happens here, once, so the analytics pass never sees a
// record with a missing amount or an unreadable date. Rejected records
// are reported as Issues rather than silently dropped.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ledgerlens/internal/core"
)

var (
	ErrMissingAmount  = errors.New("missing amount")
	ErrInvalidAmount  = errors.New("amount is not a number")
	ErrNegativeAmount = errors.New("amount is negative")
	ErrInvalidDate    = errors.New("invalid date")
)

// RawExpense is the wire shape of an expense. The upstream API names the
// identifier "_id"; seed files may use "id".
type RawExpense struct {
	MongoID     string          `json:"_id,omitempty"`
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title"`
	Amount      json.RawMessage `json:"amount,omitempty"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
}

// Identifier returns the record's id from whichever field carries it.
func (r RawExpense) Identifier() string {
	if r.MongoID != "" {
		return r.MongoID
	}
	return r.ID
}

// Issue describes one rejected record.
type Issue struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Field string `json:"field"`
	Err   error  `json:"-"`
}

func (i Issue) Error() string {
	if i.ID != "" {
		return fmt.Sprintf("record %d (%s): %s: %v", i.Index, i.ID, i.Field, i.Err)
	}
	return fmt.Sprintf("record %d: %s: %v", i.Index, i.Field, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }

func (i Issue) message() string {
	if i.Err == nil {
		return ""
	}
	return i.Err.Error()
}

// MarshalJSON includes the error text.
func (i Issue) MarshalJSON() ([]byte, error) {
	type alias Issue
	return json.Marshal(struct {
		alias
		Message string `json:"message"`
	}{alias(i), i.message()})
}

// Result holds the accepted expenses, in input order, and the issues.
type Result struct {
	Expenses []core.Expense
	Issues   []Issue
}

// Err joins all issues into one error, or returns nil.
func (r Result) Err() error {
	if len(r.Issues) == 0 {
		return nil
	}
	errs := make([]error, len(r.Issues))
	for i, is := range r.Issues {
		errs[i] = is
	}
	return errors.Join(errs...)
}

// Normalize validates every record independently.
func Normalize(raws []RawExpense) Result {
	res := Result{Expenses: make([]core.Expense, 0, len(raws))}
	for i, raw := range raws {
		e, issue := normalizeOne(i, raw)
		if issue != nil {
			res.Issues = append(res.Issues, *issue)
			continue
		}
		res.Expenses = append(res.Expenses, e)
	}
	return res
}

// Decode reads a JSON array of raw expenses, or an object wrapping one
// under "expenses", and normalizes it.
func Decode(data []byte) (Result, error) {
	data = bytes.TrimSpace(data)
	var raws []RawExpense
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Expenses []RawExpense `json:"expenses"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return Result{}, fmt.Errorf("decode expenses: %w", err)
		}
		raws = wrapped.Expenses
	} else if err := json.Unmarshal(data, &raws); err != nil {
		return Result{}, fmt.Errorf("decode expenses: %w", err)
	}
	return Normalize(raws), nil
}

func normalizeOne(index int, raw RawExpense) (core.Expense, *Issue) {
	id := strings.TrimSpace(raw.Identifier())
	fail := func(field string, err error) (core.Expense, *Issue) {
		return core.Expense{}, &Issue{Index: index, ID: id, Field: field, Err: err}
	}

	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return fail("amount", err)
	}
	date, err := ParseDate(raw.Date)
	if err != nil {
		return fail("date", err)
	}

	return core.Expense{
		ID:          id,
		Title:       strings.TrimSpace(raw.Title),
		Amount:      amount,
		Date:        date,
		Category:    strings.TrimSpace(raw.Category),
		Description: strings.TrimSpace(raw.Description),
	}, nil
}

// ParseAmount reads a JSON number or numeric string. Absent or null
// amounts are ErrMissingAmount.
func ParseAmount(raw json.RawMessage) (core.Money, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return core.Money{}, ErrMissingAmount
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return core.Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
	}
	return amountFromDecimal(d)
}

// ParseAmountString is ParseAmount for spreadsheet cells and form values.
// Both "12.50" and "12,50" are accepted.
func ParseAmountString(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Money{}, ErrMissingAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return amountFromDecimal(d)
}

func amountFromDecimal(d decimal.Decimal) (core.Money, error) {
	if d.IsNegative() {
		return core.Money{}, ErrNegativeAmount
	}
	m, err := core.MoneyFromDecimal(d)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, d)
	}
	return m, nil
}

// ParseDate reads an ISO-8601 date or timestamp through core.ParseDate,
// reporting failures as ErrInvalidDate.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}
