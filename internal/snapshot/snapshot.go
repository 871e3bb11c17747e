// Package snapshot defines the ports through which the service obtains the
// expense list it aggregates over.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
)

// ErrNotLoaded is returned by stores that have never been filled.
var ErrNotLoaded = errors.New("snapshot not loaded")

// Snapshot is an immutable, validated view of the user's expenses.
type Snapshot struct {
	Expenses  []core.Expense `json:"expenses"`
	Issues    []ingest.Issue `json:"issues,omitempty"`
	Version   string         `json:"version"`
	FetchedAt time.Time      `json:"fetchedAt"`
}

// Ports for snapshot providers.
type (
	Source interface {
		Load(ctx context.Context) (Snapshot, error)
	}

	// Store is a Source that can be overwritten by a sync.
	Store interface {
		Source
		Replace(ctx context.Context, s Snapshot) error
	}
)

// New builds a snapshot from an ingest result and stamps its version.
func New(res ingest.Result, fetchedAt time.Time) Snapshot {
	exp := res.Expenses
	if exp == nil {
		exp = []core.Expense{}
	}
	return Snapshot{
		Expenses:  exp,
		Issues:    res.Issues,
		Version:   Version(exp),
		FetchedAt: fetchedAt.UTC(),
	}
}

// Version is a content hash of the expenses. Equal lists hash equal.
func Version(expenses []core.Expense) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, e := range expenses {
		// Expense marshalling cannot fail; every field encodes.
		_ = enc.Encode(e)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Len returns the number of accepted expenses.
func (s Snapshot) Len() int { return len(s.Expenses) }

// Clone returns a copy whose slices do not alias s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Expenses = append([]core.Expense(nil), s.Expenses...)
	if out.Expenses == nil {
		out.Expenses = []core.Expense{}
	}
	if s.Issues != nil {
		out.Issues = append([]ingest.Issue(nil), s.Issues...)
	}
	return out
}
