package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
	"ledgerlens/internal/snapshot"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository persists the last synced snapshot.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load implements snapshot.Source. A database that was never synced
// returns snapshot.ErrNotLoaded.
func (r *SQLiteRepository) Load(ctx context.Context) (snapshot.Snapshot, error) {
	meta, err := r.queries.GetSnapshot(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, snapshot.ErrNotLoaded
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		d, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("expense %s: parse date %q: %w", row.ID, row.Date, err)
		}
		expenses = append(expenses, core.Expense{
			ID:          row.ID,
			Title:       row.Title,
			Amount:      core.Money{Cents: row.AmountCents},
			Date:        core.DateOf(d),
			Category:    row.Category,
			Description: row.Description,
		})
	}

	issueRows, err := r.queries.ListIssues(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("list issues: %w", err)
	}
	var issues []ingest.Issue
	for _, row := range issueRows {
		issues = append(issues, ingest.Issue{
			Index: int(row.Record),
			ID:    row.RecordID,
			Field: row.Field,
			Err:   errors.New(row.Message),
		})
	}

	fetchedAt, err := time.Parse(time.RFC3339Nano, meta.FetchedAt)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("parse fetched_at %q: %w", meta.FetchedAt, err)
	}

	return snapshot.Snapshot{
		Expenses:  expenses,
		Issues:    issues,
		Version:   meta.Version,
		FetchedAt: fetchedAt,
	}, nil
}

// Replace implements snapshot.Store. The previous snapshot is swapped out
// in a single transaction.
func (r *SQLiteRepository) Replace(ctx context.Context, s snapshot.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := r.queries.WithTx(tx)
	if err := q.DeleteExpenses(ctx); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	if err := q.DeleteIssues(ctx); err != nil {
		return fmt.Errorf("clear issues: %w", err)
	}
	for i, e := range s.Expenses {
		if err := e.Amount.Validate(); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
		if err := q.InsertExpense(ctx, Expense{
			ID:          e.ID,
			Position:    int64(i),
			Title:       e.Title,
			AmountCents: e.Amount.Cents,
			Date:        e.Date.Format(dateLayout),
			Category:    e.Category,
			Description: e.Description,
		}); err != nil {
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
	}
	for i, is := range s.Issues {
		msg := ""
		if is.Err != nil {
			msg = is.Err.Error()
		}
		if err := q.InsertIssue(ctx, IngestIssue{
			Position: int64(i),
			Record:   int64(is.Index),
			RecordID: is.ID,
			Field:    is.Field,
			Message:  msg,
		}); err != nil {
			return fmt.Errorf("insert issue %d: %w", i, err)
		}
	}
	if err := q.UpsertSnapshot(ctx, SnapshotMeta{
		Version:   s.Version,
		FetchedAt: s.FetchedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot stored in SQLite",
		"version", s.Version,
		"expenses", len(s.Expenses),
		"issues", len(s.Issues))
	return nil
}
