package google

import (
	"errors"
	"testing"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
)

func TestParseExpenseRows(t *testing.T) {
	values := [][]interface{}{
		{"date", "Amount", "Category", "Title", "ID"},
		{"2025-07-01", "12,50", "Groceries", "Market", "e1"},
		{45840.0, 30.0, "Transport", "Train"},
		{},
		{"2025-07-03", "", "Out", "Dinner", "e3"},
		{"July 4th", "10", "Out", "Party", "e4"},
		{"2025-07-05", "-2", "Out", "Refund", "e5"},
	}
	res, err := parseExpenseRows(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(res.Expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d: %+v", len(res.Expenses), res.Expenses)
	}
	first := res.Expenses[0]
	if first.ID != "e1" || first.Amount.Cents != 1250 || first.Category != "Groceries" || first.Title != "Market" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.Date != core.NewDate(2025, 7, 1) {
		t.Fatalf("unexpected date: %v", first.Date)
	}
	second := res.Expenses[1]
	if second.ID != "row-3" || second.Amount.Cents != 3000 {
		t.Fatalf("unexpected second row: %+v", second)
	}
	// 45840 is the serial for 2025-07-02.
	if second.Date != core.NewDate(2025, 7, 2) {
		t.Fatalf("unexpected serial date: %v", second.Date)
	}

	if len(res.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %+v", res.Issues)
	}
	wantErrs := []error{ingest.ErrMissingAmount, ingest.ErrInvalidDate, ingest.ErrNegativeAmount}
	for i, want := range wantErrs {
		if !errors.Is(res.Issues[i], want) {
			t.Fatalf("issue %d: want %v, got %v", i, want, res.Issues[i])
		}
	}
}

func TestParseExpenseRowsMissingHeader(t *testing.T) {
	_, err := parseExpenseRows([][]interface{}{{"Title", "Category"}})
	if err == nil {
		t.Fatalf("expected header error")
	}
}

func TestParseExpenseRowsEmpty(t *testing.T) {
	res, err := parseExpenseRows(nil)
	if err != nil || res.Expenses == nil || len(res.Expenses) != 0 {
		t.Fatalf("unexpected result: %+v %v", res, err)
	}
}

func TestMonthlyRows(t *testing.T) {
	rows := monthlyRows(2024, []analytics.MonthTotal{
		{Name: "Jan", Total: core.Money{Cents: 10000}},
		{Name: "Mar", Total: core.Money{Cents: 5050}},
	})
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "2024" || rows[1][0] != "Jan" || rows[1][1] != "100.00" || rows[2][1] != "50.50" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestServiceAccountCredentialsMissing(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := serviceAccountCredentials(); err == nil {
		t.Fatalf("expected error without credentials")
	}
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	b, err := serviceAccountCredentials()
	if err != nil || string(b) != `{"type":"service_account"}` {
		t.Fatalf("unexpected credentials: %s %v", b, err)
	}
}
