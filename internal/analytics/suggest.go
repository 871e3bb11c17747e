package analytics

import (
	"strings"

	"golang.org/x/text/cases"

	"ledgerlens/internal/core"
)

// SuggestCategories returns the distinct categories used so far, in the
// order they first appear, keeping those that contain query regardless of
// case. Blank categories are never suggested.
func SuggestCategories(expenses []core.Expense, query string) []string {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range expenses {
		name := strings.TrimSpace(e.Category)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if needle == "" || strings.Contains(fold.String(name), needle) {
			out = append(out, name)
		}
	}
	return out
}
