package analytics

import "ledgerlens/internal/core"

// Report bundles every view for one filter.
type Report struct {
	Filter     Filter       `json:"filter"`
	Years      []int        `json:"years"`
	Monthly    []MonthTotal `json:"monthly"`
	Categories Breakdown    `json:"categories"`
	Summary    Summary      `json:"summary"`
}

// BuildReport computes all views over expenses for f. The monthly trend
// always spans the whole filter year.
func BuildReport(expenses []core.Expense, f Filter) Report {
	filtered := f.Apply(expenses)
	return Report{
		Filter:     f,
		Years:      AvailableYears(expenses),
		Monthly:    MonthlyTotals(expenses, f.Year),
		Categories: GroupByCategory(filtered),
		Summary:    summarizeFiltered(filtered),
	}
}
