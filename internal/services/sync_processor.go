package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/analytics"
	"ledgerlens/internal/snapshot"
)

// SnapshotPublisher announces stored snapshots.
type SnapshotPublisher interface {
	PublishSnapshotRefreshed(ctx context.Context, msg *amqp.SnapshotRefreshed) error
}

// MonthlyExporter writes a year's monthly totals somewhere people look,
// e.g. a spreadsheet tab.
type MonthlyExporter interface {
	ExportMonthlyTotals(ctx context.Context, year int, totals []analytics.MonthTotal) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to pull from upstream (default: 15m). Zero
	// disables the periodic pull; syncs then only run on request.
	PollInterval time.Duration

	// Timeout bounds a single sync (default: 2m).
	Timeout time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 15 * time.Minute,
		Timeout:      2 * time.Minute,
	}
}

// SyncResult describes one completed sync.
type SyncResult struct {
	Version string
	Count   int
	Issues  int
	Changed bool
}

// SyncProcessor copies the upstream snapshot into the local store.
type SyncProcessor struct {
	upstream  snapshot.Source
	store     snapshot.Store
	publisher SnapshotPublisher
	exporter  MonthlyExporter
	config    SyncProcessorConfig
	now       func() time.Time

	// syncMu serialises Sync; the poll loop and AMQP consumer share it.
	syncMu sync.Mutex

	mu      sync.Mutex
	running bool
}

// NewSyncProcessor creates a new sync processor. publisher and exporter
// are optional.
func NewSyncProcessor(
	upstream snapshot.Source,
	store snapshot.Store,
	publisher SnapshotPublisher,
	exporter MonthlyExporter,
	config SyncProcessorConfig,
) *SyncProcessor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultSyncProcessorConfig().Timeout
	}
	return &SyncProcessor{
		upstream:  upstream,
		store:     store,
		publisher: publisher,
		exporter:  exporter,
		config:    config,
		now:       time.Now,
	}
}

// Sync pulls upstream once. requestID links the resulting event to the
// refresh request that caused it; pass uuid.Nil for scheduled runs.
func (p *SyncProcessor) Sync(ctx context.Context, requestID uuid.UUID) (SyncResult, error) {
	if p.upstream == nil || p.store == nil {
		return SyncResult{}, errors.New("sync processor not configured")
	}
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	snap, err := p.upstream.Load(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load upstream: %w", err)
	}
	res := SyncResult{Version: snap.Version, Count: len(snap.Expenses), Issues: len(snap.Issues)}

	prev, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrNotLoaded):
	case err != nil:
		return res, fmt.Errorf("load local snapshot: %w", err)
	}
	if err == nil && prev.Version == snap.Version {
		slog.DebugContext(ctx, "Upstream unchanged", "snapshot_version", snap.Version)
		return res, nil
	}

	if err := p.store.Replace(ctx, snap); err != nil {
		return res, fmt.Errorf("store snapshot: %w", err)
	}
	res.Changed = true

	slog.InfoContext(ctx, "Snapshot synced",
		"snapshot_version", snap.Version,
		"expenses", res.Count,
		"issues", res.Issues)

	if p.exporter != nil {
		year := p.now().Year()
		if err := p.exporter.ExportMonthlyTotals(ctx, year, analytics.MonthlyTotals(snap.Expenses, year)); err != nil {
			// The store is already updated; a failed export is retried next sync.
			slog.WarnContext(ctx, "Monthly totals export failed", "year", year, "error", err)
		}
	}

	if p.publisher != nil {
		msg := amqp.NewSnapshotRefreshed(requestID, snap.Version, res.Count, res.Issues)
		if err := p.publisher.PublishSnapshotRefreshed(ctx, msg); err != nil {
			slog.WarnContext(ctx, "Failed to publish snapshot refreshed event", "error", err)
		}
	}
	return res, nil
}

// Run syncs once and then every PollInterval until ctx is done. Failed
// syncs are logged and retried on the next tick.
func (p *SyncProcessor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.syncAndLog(ctx)
	if p.config.PollInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	slog.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Sync processor stopped")
			return nil
		case <-ticker.C:
			p.syncAndLog(ctx)
		}
	}
}

func (p *SyncProcessor) syncAndLog(ctx context.Context) {
	if _, err := p.Sync(ctx, uuid.Nil); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Scheduled sync failed", "error", err)
	}
}

// IsRunning reports whether Run is active.
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
