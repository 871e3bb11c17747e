package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Expense struct {
	ID          string
	Position    int64
	Title       string
	AmountCents int64
	Date        string
	Category    string
	Description string
}

type IngestIssue struct {
	Position int64
	Record   int64
	RecordID string
	Field    string
	Message  string
}

type SnapshotMeta struct {
	Version   string
	FetchedAt string
}

const deleteExpenses = `DELETE FROM expenses`

func (q *Queries) DeleteExpenses(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteExpenses)
	return err
}

const deleteIssues = `DELETE FROM ingest_issues`

func (q *Queries) DeleteIssues(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteIssues)
	return err
}

const insertExpense = `INSERT INTO expenses (id, position, title, amount_cents, date, category, description)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertExpense(ctx context.Context, arg Expense) error {
	_, err := q.db.ExecContext(ctx, insertExpense,
		arg.ID, arg.Position, arg.Title, arg.AmountCents, arg.Date, arg.Category, arg.Description)
	return err
}

const insertIssue = `INSERT INTO ingest_issues (position, record, record_id, field, message)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertIssue(ctx context.Context, arg IngestIssue) error {
	_, err := q.db.ExecContext(ctx, insertIssue,
		arg.Position, arg.Record, arg.RecordID, arg.Field, arg.Message)
	return err
}

const upsertSnapshot = `INSERT INTO snapshots (singleton, version, fetched_at) VALUES (1, ?, ?)
ON CONFLICT(singleton) DO UPDATE SET version = excluded.version, fetched_at = excluded.fetched_at`

func (q *Queries) UpsertSnapshot(ctx context.Context, arg SnapshotMeta) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.Version, arg.FetchedAt)
	return err
}

const getSnapshot = `SELECT version, fetched_at FROM snapshots WHERE singleton = 1`

func (q *Queries) GetSnapshot(ctx context.Context) (SnapshotMeta, error) {
	var m SnapshotMeta
	err := q.db.QueryRowContext(ctx, getSnapshot).Scan(&m.Version, &m.FetchedAt)
	return m, err
}

const listExpenses = `SELECT id, position, title, amount_cents, date, category, description
FROM expenses ORDER BY position`

func (q *Queries) ListExpenses(ctx context.Context) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var i Expense
		if err := rows.Scan(&i.ID, &i.Position, &i.Title, &i.AmountCents, &i.Date, &i.Category, &i.Description); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listIssues = `SELECT position, record, record_id, field, message FROM ingest_issues ORDER BY position`

func (q *Queries) ListIssues(ctx context.Context) ([]IngestIssue, error) {
	rows, err := q.db.QueryContext(ctx, listIssues)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IngestIssue
	for rows.Next() {
		var i IngestIssue
		if err := rows.Scan(&i.Position, &i.Record, &i.RecordID, &i.Field, &i.Message); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
