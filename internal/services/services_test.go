package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/analytics"
	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
	"ledgerlens/internal/snapshot"
	"ledgerlens/internal/snapshot/memory"
)

type countingSource struct {
	mu    sync.Mutex
	snap  snapshot.Snapshot
	err   error
	loads int32
	delay time.Duration
}

func (s *countingSource) Load(ctx context.Context) (snapshot.Snapshot, error) {
	atomic.AddInt32(&s.loads, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return snapshot.Snapshot{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return snapshot.Snapshot{}, s.err
	}
	return s.snap.Clone(), nil
}

func (s *countingSource) set(snap snapshot.Snapshot, err error) {
	s.mu.Lock()
	s.snap, s.err = snap, err
	s.mu.Unlock()
}

func expense(id string, cents int64, y, m, d int, cat string) core.Expense {
	return core.Expense{ID: id, Title: id, Amount: core.Money{Cents: cents}, Date: core.NewDate(y, m, d), Category: cat}
}

func sampleSnapshot() snapshot.Snapshot {
	return snapshot.New(ingest.Result{Expenses: []core.Expense{
		expense("a", 10000, 2024, 1, 5, "Food"),
		expense("b", 5000, 2024, 1, 20, "Transport"),
		expense("c", 20000, 2024, 3, 2, "Food"),
		expense("d", 700, 2023, 12, 31, ""),
	}}, time.Now())
}

type fakePublisher struct {
	mu        sync.Mutex
	requests  []string
	refreshed []*amqp.SnapshotRefreshed
	err       error
}

func (p *fakePublisher) PublishRefreshRequest(_ context.Context, reason string) (*amqp.RefreshRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.requests = append(p.requests, reason)
	return amqp.NewRefreshRequest(reason), nil
}

func (p *fakePublisher) PublishSnapshotRefreshed(_ context.Context, msg *amqp.SnapshotRefreshed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.refreshed = append(p.refreshed, msg)
	return nil
}

type fakeExporter struct {
	year   int
	totals []analytics.MonthTotal
	calls  int
}

func (e *fakeExporter) ExportMonthlyTotals(_ context.Context, year int, totals []analytics.MonthTotal) error {
	e.calls++
	e.year, e.totals = year, totals
	return nil
}

func TestAnalyticsServiceReport(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot()}
	svc := NewAnalyticsService(src, nil, DefaultAnalyticsConfig())
	ctx := context.Background()

	r, err := svc.Report(ctx, analytics.Filter{Year: 2024, Month: analytics.AllMonths})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if r.Summary.Total.Cents != 35000 || r.Summary.Count != 3 {
		t.Fatalf("unexpected summary: %+v", r.Summary)
	}
	if len(r.Monthly) != 2 || r.Monthly[0].Name != "Jan" || r.Monthly[0].Total.Cents != 15000 {
		t.Fatalf("unexpected monthly: %+v", r.Monthly)
	}
	if len(r.Years) != 2 || r.Years[0] != 2024 {
		t.Fatalf("unexpected years: %v", r.Years)
	}

	// Second call is served from cache without touching the source.
	if _, err := svc.Report(ctx, analytics.Filter{Year: 2024, Month: analytics.AllMonths}); err != nil {
		t.Fatalf("report: %v", err)
	}
	if got := atomic.LoadInt32(&src.loads); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}
	if st := svc.Cache().Stats(); st.Hits != 1 || st.Size != 1 {
		t.Fatalf("unexpected cache stats: %+v", st)
	}
}

func TestAnalyticsServiceViews(t *testing.T) {
	svc := NewAnalyticsService(&countingSource{snap: sampleSnapshot()}, nil, DefaultAnalyticsConfig())
	ctx := context.Background()

	monthly, err := svc.Monthly(ctx, 2023)
	if err != nil || len(monthly) != 1 || monthly[0].Name != "Dec" {
		t.Fatalf("unexpected monthly: %+v %v", monthly, err)
	}

	cats, err := svc.Categories(ctx, analytics.Filter{Year: 2024, Month: "Jan"})
	if err != nil || len(cats.ChartData) != 2 || cats.ChartData[0].Name != "Food" {
		t.Fatalf("unexpected categories: %+v %v", cats, err)
	}

	sum, err := svc.Summary(ctx, analytics.Filter{Year: 2024, Month: "Mar"})
	if err != nil || sum.Highest == nil || sum.Highest.ID != "c" {
		t.Fatalf("unexpected summary: %+v %v", sum, err)
	}

	years, _ := svc.Years(ctx)
	if len(years) != 2 || years[1] != 2023 {
		t.Fatalf("unexpected years: %v", years)
	}

	sugg, _ := svc.Suggest(ctx, "fo")
	if len(sugg) != 1 || sugg[0] != "Food" {
		t.Fatalf("unexpected suggestions: %v", sugg)
	}

	list, _ := svc.Expenses(ctx, analytics.DayFilter{Month: 1})
	if len(list) != 2 {
		t.Fatalf("unexpected expenses: %+v", list)
	}
}

func TestAnalyticsServiceDeduplicatesLoads(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot(), delay: 50 * time.Millisecond}
	svc := NewAnalyticsService(src, nil, DefaultAnalyticsConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Report(context.Background(), analytics.Filter{Year: 2024, Month: analytics.AllMonths}); err != nil {
				t.Errorf("report: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&src.loads); got != 1 {
		t.Fatalf("expected a single shared load, got %d", got)
	}
}

func TestAnalyticsServiceCancelledCallerLeavesSharedLoad(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot(), delay: 200 * time.Millisecond}
	svc := NewAnalyticsService(src, nil, DefaultAnalyticsConfig())
	f := analytics.Filter{Year: 2024, Month: analytics.AllMonths}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Report(ctxA, f)
		errA <- err
	}()
	errB := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, err := svc.Report(context.Background(), f)
		errB <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()

	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	if err := <-errB; err != nil {
		t.Fatalf("other caller failed with the cancelled caller: %v", err)
	}
	if got := atomic.LoadInt32(&src.loads); got != 1 {
		t.Fatalf("expected a single shared load, got %d", got)
	}
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("snapshot after shared load: %v", err)
	}
}

func TestAnalyticsServiceServesStaleOnError(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot()}
	cfg := DefaultAnalyticsConfig()
	cfg.SnapshotTTL = 0
	svc := NewAnalyticsService(src, nil, cfg)
	ctx := context.Background()

	if _, err := svc.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	src.set(snapshot.Snapshot{}, errors.New("upstream down"))
	snap, err := svc.Snapshot(ctx)
	if err != nil || snap.Len() != 4 {
		t.Fatalf("expected previous snapshot, got %d %v", snap.Len(), err)
	}

	svc.Invalidate()
	if _, err := svc.Snapshot(ctx); err == nil {
		t.Fatalf("expected error without a previous snapshot")
	}
	if err := svc.Ready(ctx); err == nil {
		t.Fatalf("service should not be ready")
	}
}

func TestAnalyticsServiceNewVersionMissesCache(t *testing.T) {
	src := &countingSource{snap: sampleSnapshot()}
	svc := NewAnalyticsService(src, nil, DefaultAnalyticsConfig())
	ctx := context.Background()
	f := analytics.Filter{Year: 2024, Month: analytics.AllMonths}

	first, _ := svc.Report(ctx, f)
	next := snapshot.New(ingest.Result{Expenses: []core.Expense{expense("z", 1, 2024, 6, 1, "New")}}, time.Now())
	src.set(next, nil)
	svc.Invalidate()

	second, err := svc.Report(ctx, f)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if first.Summary.Count == second.Summary.Count || second.Summary.Total.Cents != 1 {
		t.Fatalf("expected report over the new snapshot, got %+v", second.Summary)
	}
}

func TestAnalyticsServiceRefresh(t *testing.T) {
	svc := NewAnalyticsService(&countingSource{snap: sampleSnapshot()}, nil, DefaultAnalyticsConfig())
	out, err := svc.Refresh(context.Background(), "api")
	if err != nil || out.Queued {
		t.Fatalf("refresh without publisher should only invalidate: %+v %v", out, err)
	}

	pub := &fakePublisher{}
	svc = NewAnalyticsService(&countingSource{snap: sampleSnapshot()}, pub, DefaultAnalyticsConfig())
	out, err = svc.Refresh(context.Background(), "api")
	if err != nil || !out.Queued || out.RequestID == uuid.Nil || len(pub.requests) != 1 {
		t.Fatalf("unexpected outcome %+v %v", out, err)
	}

	pub.err = errors.New("broker down")
	if _, err := svc.Refresh(context.Background(), "api"); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestSyncProcessorSync(t *testing.T) {
	ctx := context.Background()
	upstream := &countingSource{snap: sampleSnapshot()}
	store := memory.New(snapshot.Snapshot{})
	pub := &fakePublisher{}
	exp := &fakeExporter{}

	p := NewSyncProcessor(upstream, store, pub, exp, DefaultSyncProcessorConfig())
	p.now = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }

	reqID := uuid.New()
	res, err := p.Sync(ctx, reqID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !res.Changed || res.Count != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	stored, _ := store.Load(ctx)
	if stored.Version != upstream.snap.Version {
		t.Fatalf("store not updated")
	}
	if len(pub.refreshed) != 1 || pub.refreshed[0].RequestID != reqID || pub.refreshed[0].Count != 4 {
		t.Fatalf("unexpected events: %+v", pub.refreshed)
	}
	if exp.calls != 1 || exp.year != 2024 || len(exp.totals) != 2 {
		t.Fatalf("unexpected export: %+v", exp)
	}

	// Unchanged upstream is a no-op.
	res, err = p.Sync(ctx, uuid.Nil)
	if err != nil || res.Changed || len(pub.refreshed) != 1 || exp.calls != 1 {
		t.Fatalf("expected no-op sync, got %+v %v", res, err)
	}
}

func TestSyncProcessorUpstreamError(t *testing.T) {
	upstream := &countingSource{err: errors.New("boom")}
	p := NewSyncProcessor(upstream, memory.New(snapshot.Snapshot{}), nil, nil, DefaultSyncProcessorConfig())
	if _, err := p.Sync(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("expected error")
	}

	unconfigured := NewSyncProcessor(nil, nil, nil, nil, DefaultSyncProcessorConfig())
	if _, err := unconfigured.Sync(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestSyncProcessorRun(t *testing.T) {
	upstream := &countingSource{snap: sampleSnapshot()}
	cfg := DefaultSyncProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	p := NewSyncProcessor(upstream, memory.New(snapshot.Snapshot{}), nil, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&upstream.loads) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("processor did not poll")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !p.IsRunning() {
		t.Fatalf("processor should be running")
	}
	if err := p.Run(ctx); err == nil {
		t.Fatalf("second Run should fail")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.IsRunning() {
		t.Fatalf("processor should have stopped")
	}
}
