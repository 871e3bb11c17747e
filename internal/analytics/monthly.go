package analytics

import "ledgerlens/internal/core"

// MonthTotal is one bar of the monthly trend.
type MonthTotal struct {
	Name  string     `json:"name"`
	Total core.Money `json:"total"`
}

// MonthlyTotals sums the expenses of year per calendar month. Months without
// expenses are omitted and the result is ordered Jan to Dec.
func MonthlyTotals(expenses []core.Expense, year int) []MonthTotal {
	var sums [12]core.Money
	var seen [12]bool
	for _, e := range expenses {
		if e.Date.IsZero() || e.Date.Year() != year {
			continue
		}
		i := e.Date.Month() - 1
		sums[i] = sums[i].Add(e.Amount)
		seen[i] = true
	}

	out := make([]MonthTotal, 0, 12)
	for i := range sums {
		if !seen[i] {
			continue
		}
		out = append(out, MonthTotal{Name: core.MonthAbbrev(i + 1), Total: sums[i]})
	}
	return out
}
