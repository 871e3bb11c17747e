package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
)

// Spreadsheet serial dates count days from this epoch.
var sheetsEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseExpenseRows converts a values matrix (as returned by Sheets API) into
// validated expenses. The first row is the header; columns are located by
// name so the tab can be reordered.
func parseExpenseRows(values [][]interface{}) (ingest.Result, error) {
	if len(values) == 0 {
		return ingest.Result{Expenses: []core.Expense{}}, nil
	}
	headers := toStrings(values[0])
	col := map[string]int{}
	for _, name := range []string{"ID", "Title", "Amount", "Date", "Category", "Description"} {
		col[name] = indexOf(headers, name)
	}
	var missing []string
	for _, name := range []string{"Amount", "Date"} {
		if col[name] == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ingest.Result{}, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	res := ingest.Result{Expenses: make([]core.Expense, 0, len(values)-1)}
	for i := 1; i < len(values); i++ {
		row := values[i]
		if isBlank(row) {
			continue
		}
		index := i - 1
		id := cellString(row, col["ID"])
		if id == "" {
			id = fmt.Sprintf("row-%d", i+1)
		}

		amount, err := ingest.ParseAmountString(cellString(row, col["Amount"]))
		if err != nil {
			res.Issues = append(res.Issues, ingest.Issue{Index: index, ID: id, Field: "amount", Err: err})
			continue
		}
		date, err := cellDate(row, col["Date"])
		if err != nil {
			res.Issues = append(res.Issues, ingest.Issue{Index: index, ID: id, Field: "date", Err: err})
			continue
		}
		res.Expenses = append(res.Expenses, core.Expense{
			ID:          id,
			Title:       cellString(row, col["Title"]),
			Amount:      amount,
			Date:        date,
			Category:    cellString(row, col["Category"]),
			Description: cellString(row, col["Description"]),
		})
	}
	return res, nil
}

func cellDate(row []interface{}, idx int) (core.Date, error) {
	if idx >= 0 && idx < len(row) {
		if serial, ok := row[idx].(float64); ok {
			if serial <= 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
				return core.Date{}, fmt.Errorf("%w: serial %v", ingest.ErrInvalidDate, serial)
			}
			return core.DateOf(sheetsEpoch.AddDate(0, 0, int(serial))), nil
		}
	}
	return ingest.ParseDate(cellString(row, idx))
}

func cellString(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func isBlank(row []interface{}) bool {
	for i := range row {
		if cellString(row, i) != "" {
			return false
		}
	}
	return true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}
