package analytics

import (
	"math"

	"ledgerlens/internal/core"
)

// Summary holds the scalar figures for a filter.
type Summary struct {
	Total   core.Money    `json:"total"`
	Count   int           `json:"count"`
	Highest *core.Expense `json:"highest"`
}

// Summarize computes total, count and the highest expense over the
// expenses matching f. On equal amounts the earliest record wins.
func Summarize(expenses []core.Expense, f Filter) Summary {
	return summarizeFiltered(f.Apply(expenses))
}

func summarizeFiltered(filtered []core.Expense) Summary {
	var s Summary
	for i := range filtered {
		e := filtered[i]
		s.Total = s.Total.Add(e.Amount)
		s.Count++
		if s.Highest == nil || e.Amount.Cents > s.Highest.Amount.Cents {
			s.Highest = &e
		}
	}
	return s
}

// Share returns value as a percentage of total, rounded to one decimal.
// A zero total yields 0.
func Share(value, total core.Money) float64 {
	if total.Cents == 0 {
		return 0
	}
	pct := float64(value.Cents) * 100 / float64(total.Cents)
	return math.Round(pct*10) / 10
}
