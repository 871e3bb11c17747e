package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/analytics"
	"ledgerlens/internal/cache"
	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/snapshot"
)

// RefreshPublisher hands refresh requests to the worker.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, reason string) (*amqp.RefreshRequest, error)
}

// AnalyticsConfig tunes snapshot reuse and report caching.
type AnalyticsConfig struct {
	// SnapshotTTL is how long a loaded snapshot is reused before the
	// source is asked again. Zero reloads on every cache miss.
	SnapshotTTL time.Duration
	// LoadTimeout bounds a shared snapshot load. The load does not follow
	// any single caller's cancellation.
	LoadTimeout time.Duration
	CacheSize   int
	CacheTTL    time.Duration

	// Backend names the source in logs.
	Backend string
	Logger  *ledgerlog.Logger
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		SnapshotTTL: time.Minute,
		LoadTimeout: 30 * time.Second,
		CacheSize:   128,
		CacheTTL:    10 * time.Minute,
	}
}

// AnalyticsService serves aggregated views over the current snapshot.
// Reports are cached per snapshot version and filter; concurrent loads and
// builds for the same key run once.
type AnalyticsService struct {
	source    snapshot.Source
	publisher RefreshPublisher
	reports   *cache.LRUCache[analytics.Report]
	config    AnalyticsConfig
	group     singleflight.Group
	logger    *ledgerlog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	current  *snapshot.Snapshot
	loadedAt time.Time
}

// NewAnalyticsService creates the service. publisher may be nil when no
// worker is deployed.
func NewAnalyticsService(source snapshot.Source, publisher RefreshPublisher, config AnalyticsConfig) *AnalyticsService {
	if config.CacheSize < 1 {
		config.CacheSize = DefaultAnalyticsConfig().CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultAnalyticsConfig().CacheTTL
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultAnalyticsConfig().LoadTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = ledgerlog.New(ledgerlog.Config{Component: ledgerlog.ComponentAnalytics})
	}
	return &AnalyticsService{
		source:    source,
		publisher: publisher,
		reports:   cache.NewLRUCache[analytics.Report](config.CacheSize, config.CacheTTL),
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Cache exposes the report cache for registration with a cache.Manager.
func (s *AnalyticsService) Cache() *cache.LRUCache[analytics.Report] {
	return s.reports
}

// Snapshot returns the current snapshot, loading it when missing or stale.
func (s *AnalyticsService) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	s.mu.RLock()
	cur, loadedAt := s.current, s.loadedAt
	s.mu.RUnlock()
	if cur != nil && s.now().Sub(loadedAt) < s.config.SnapshotTTL {
		return *cur, nil
	}

	ch := s.group.DoChan("snapshot", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.LoadTimeout)
		defer cancel()
		snap, err := s.source.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		prev := s.current
		s.current = &snap
		s.loadedAt = s.now()
		s.mu.Unlock()

		if prev == nil || prev.Version != snap.Version {
			ledgerlog.NewStructuredLogger(s.logger).
				LogSnapshotLoaded(loadCtx, s.config.Backend, snap.Version, len(snap.Expenses), len(snap.Issues))
		}
		return snap, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return snapshot.Snapshot{}, fmt.Errorf("load snapshot: %w", ctx.Err())
	}
	if res.Err != nil {
		if cur != nil {
			// Serve the last good snapshot while the source is failing.
			s.logger.WarnContext(ctx, "Snapshot reload failed, serving previous version",
				ledgerlog.FieldVersion, cur.Version,
				ledgerlog.FieldError, res.Err)
			return *cur, nil
		}
		return snapshot.Snapshot{}, fmt.Errorf("load snapshot: %w", res.Err)
	}
	return res.Val.(snapshot.Snapshot), nil
}

// Report returns the full analytics view for f.
func (s *AnalyticsService) Report(ctx context.Context, f analytics.Filter) (analytics.Report, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return analytics.Report{}, err
	}
	key := snap.Version + "|" + f.Key()
	if r, ok := s.reports.Get(key); ok {
		return r, nil
	}

	v, _, _ := s.group.Do("report:"+key, func() (any, error) {
		r := analytics.BuildReport(snap.Expenses, f)
		s.reports.Set(key, r)
		s.logger.Operation(ctx, ledgerlog.OpReport).DebugContext(ctx, "Report built",
			ledgerlog.NewFields().WithFilter(f.Year, f.Month).WithSnapshot(snap.Version, len(snap.Expenses), len(snap.Issues)).ToSlice()...)
		return r, nil
	})
	return v.(analytics.Report), nil
}

// Monthly returns the year's monthly totals.
func (s *AnalyticsService) Monthly(ctx context.Context, year int) ([]analytics.MonthTotal, error) {
	r, err := s.Report(ctx, analytics.Filter{Year: year, Month: analytics.AllMonths})
	if err != nil {
		return nil, err
	}
	return r.Monthly, nil
}

func (s *AnalyticsService) Categories(ctx context.Context, f analytics.Filter) (analytics.Breakdown, error) {
	r, err := s.Report(ctx, f)
	if err != nil {
		return analytics.Breakdown{}, err
	}
	return r.Categories, nil
}

func (s *AnalyticsService) Summary(ctx context.Context, f analytics.Filter) (analytics.Summary, error) {
	r, err := s.Report(ctx, f)
	if err != nil {
		return analytics.Summary{}, err
	}
	return r.Summary, nil
}

// Years lists the calendar years present in the snapshot, newest first.
func (s *AnalyticsService) Years(ctx context.Context) ([]int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.AvailableYears(snap.Expenses), nil
}

// Suggest returns categories matching query for autocompletion.
func (s *AnalyticsService) Suggest(ctx context.Context, query string) ([]string, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.SuggestCategories(snap.Expenses, query), nil
}

// Expenses lists expenses matching the month/day filter.
func (s *AnalyticsService) Expenses(ctx context.Context, f analytics.DayFilter) ([]core.Expense, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.FilterByDay(snap.Expenses, f), nil
}

// Issues returns the records rejected when the snapshot was ingested.
func (s *AnalyticsService) Issues(ctx context.Context) ([]ingest.Issue, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Issues, nil
}

// Invalidate drops the held snapshot and every cached report.
func (s *AnalyticsService) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.reports.Purge()
}

// RefreshOutcome reports what a refresh did.
type RefreshOutcome struct {
	RequestID uuid.UUID `json:"requestId,omitempty"`
	Queued    bool      `json:"queued"`
}

// Refresh invalidates local state and, when a worker is configured, asks it
// to pull from upstream.
func (s *AnalyticsService) Refresh(ctx context.Context, reason string) (RefreshOutcome, error) {
	s.Invalidate()
	if s.publisher == nil {
		return RefreshOutcome{}, nil
	}
	req, err := s.publisher.PublishRefreshRequest(ctx, reason)
	if err != nil {
		return RefreshOutcome{}, fmt.Errorf("publish refresh request: %w", err)
	}
	return RefreshOutcome{RequestID: req.ID, Queued: true}, nil
}

// Ready reports whether a snapshot can be served.
func (s *AnalyticsService) Ready(ctx context.Context) error {
	_, err := s.Snapshot(ctx)
	return err
}
