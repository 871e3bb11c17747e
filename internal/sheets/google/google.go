package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/snapshot"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and tabs the client works on.
type Config struct {
	SpreadsheetID string
	// ExpensesSheet holds one expense per row under a header row.
	ExpensesSheet string
	// ReportSheet receives exported monthly totals.
	ReportSheet string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	reportSheet   string
	now           func() time.Time
}

var _ snapshot.Source = (*Client)(nil)

// New creates a Sheets client using Service Account credentials from the
// environment.
func New(ctx context.Context, cfg Config) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.ReportSheet == "" {
		cfg.ReportSheet = "Report"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: id,
		expensesSheet: cfg.ExpensesSheet,
		reportSheet:   cfg.ReportSheet,
		now:           time.Now,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Load implements snapshot.Source by reading every row of the expenses tab.
func (c *Client) Load(ctx context.Context) (snapshot.Snapshot, error) {
	if c.svc == nil {
		return snapshot.Snapshot{}, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:F", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read %s: %w", rng, err)
	}
	res, err := parseExpenseRows(resp.Values)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("parse %s: %w", c.expensesSheet, err)
	}
	if len(res.Issues) > 0 {
		slog.WarnContext(ctx, "Rejected spreadsheet rows",
			"sheet", c.expensesSheet,
			"issues", len(res.Issues))
	}
	return snapshot.New(res, c.now()), nil
}

// ExportMonthlyTotals overwrites the report tab with the year's monthly
// totals.
func (c *Client) ExportMonthlyTotals(ctx context.Context, year int, totals []analytics.MonthTotal) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:B", c.reportSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	vr := &gsheet.ValueRange{Values: monthlyRows(year, totals)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.reportSheet+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", c.reportSheet, err)
	}

	slog.InfoContext(ctx, "Monthly totals exported",
		"sheet", c.reportSheet,
		"year", year,
		"months", len(totals))
	return nil
}

func monthlyRows(year int, totals []analytics.MonthTotal) [][]interface{} {
	rows := make([][]interface{}, 0, len(totals)+1)
	rows = append(rows, []interface{}{fmt.Sprintf("%d", year), "Total"})
	for _, mt := range totals {
		rows = append(rows, []interface{}{mt.Name, mt.Total.String()})
	}
	return rows
}
