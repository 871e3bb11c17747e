package analytics

import (
	"sort"

	"ledgerlens/internal/core"
)

// AvailableYears lists the distinct calendar years present, newest first.
func AvailableYears(expenses []core.Expense) []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		y := e.Date.Year()
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
