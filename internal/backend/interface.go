package backend

import (
	"context"

	"ledgerlens/internal/snapshot"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the snapshot source and optional cleanup function.
// Store is set when the backend can also be written to.
type BackendResult struct {
	Source  snapshot.Source
	Store   snapshot.Store
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleReportSheetName string

	// Remote API specific
	APIBaseURL  string
	APIToken    string
	APIEmail    string
	APIPassword string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	RemoteBackend BackendType = "remote"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, SheetsBackend, RemoteBackend:
		return true
	default:
		return false
	}
}

// Writable reports whether the backend implements snapshot.Store.
func (bt BackendType) Writable() bool {
	return bt == MemoryBackend || bt == SQLiteBackend
}
