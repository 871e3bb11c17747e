package analytics

import (
	"fmt"
	"sort"

	"ledgerlens/internal/core"
)

// TopCategories is how many categories the chart shows before collapsing the
// rest into an Others entry.
const TopCategories = 6

// CategorySlice is one category total. The synthetic Others entry carries
// the collapsed categories in Details.
type CategorySlice struct {
	Name    string          `json:"name"`
	Value   core.Money      `json:"value"`
	Percent float64         `json:"percent"`
	IsOther bool            `json:"isOther,omitempty"`
	Details []CategorySlice `json:"details,omitempty"`
}

// Breakdown holds the chart-ready list and the full sorted list.
type Breakdown struct {
	ChartData     []CategorySlice `json:"chartData"`
	AllCategories []CategorySlice `json:"allCategories"`
}

// CategoryBreakdown filters expenses by f and groups them by category.
func CategoryBreakdown(expenses []core.Expense, f Filter) Breakdown {
	return GroupByCategory(f.Apply(expenses))
}

// GroupByCategory sums an already filtered list per category, sorted by
// value descending. Categories with equal totals keep the order in which
// they were first seen. Percentages are relative to the list total.
func GroupByCategory(filtered []core.Expense) Breakdown {
	index := make(map[string]int)
	all := make([]CategorySlice, 0)
	var total core.Money
	for _, e := range filtered {
		name := e.CategoryName()
		i, ok := index[name]
		if !ok {
			i = len(all)
			index[name] = i
			all = append(all, CategorySlice{Name: name})
		}
		all[i].Value = all[i].Value.Add(e.Amount)
		total = total.Add(e.Amount)
	}

	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Value.Cents > all[b].Value.Cents
	})
	for i := range all {
		all[i].Percent = Share(all[i].Value, total)
	}

	return Breakdown{ChartData: collapse(all, total), AllCategories: all}
}

func collapse(sorted []CategorySlice, total core.Money) []CategorySlice {
	if len(sorted) <= TopCategories {
		chart := make([]CategorySlice, len(sorted))
		copy(chart, sorted)
		return chart
	}

	chart := make([]CategorySlice, TopCategories, TopCategories+1)
	copy(chart, sorted[:TopCategories])

	rest := make([]CategorySlice, len(sorted)-TopCategories)
	copy(rest, sorted[TopCategories:])
	var sum core.Money
	for _, c := range rest {
		sum = sum.Add(c.Value)
	}
	return append(chart, CategorySlice{
		Name:    fmt.Sprintf("Others (%d)", len(rest)),
		Value:   sum,
		Percent: Share(sum, total),
		IsOther: true,
		Details: rest,
	})
}

// Preview returns at most n of the collapsed categories and how many were
// left out.
func (c CategorySlice) Preview(n int) ([]CategorySlice, int) {
	if n < 0 {
		n = 0
	}
	if len(c.Details) <= n {
		return c.Details, 0
	}
	return c.Details[:n], len(c.Details) - n
}
