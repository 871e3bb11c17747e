package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/middleware/ratelimit"
	"ledgerlens/internal/middleware/security"
	"ledgerlens/internal/middleware/trace"
	"ledgerlens/internal/remote"
	"ledgerlens/internal/services"
)

// Analytics is the read side the handlers serve from.
type Analytics interface {
	Report(ctx context.Context, f analytics.Filter) (analytics.Report, error)
	Monthly(ctx context.Context, year int) ([]analytics.MonthTotal, error)
	Categories(ctx context.Context, f analytics.Filter) (analytics.Breakdown, error)
	Summary(ctx context.Context, f analytics.Filter) (analytics.Summary, error)
	Years(ctx context.Context) ([]int, error)
	Suggest(ctx context.Context, query string) ([]string, error)
	Expenses(ctx context.Context, f analytics.DayFilter) ([]core.Expense, error)
	Issues(ctx context.Context) ([]ingest.Issue, error)
	Refresh(ctx context.Context, reason string) (services.RefreshOutcome, error)
	Ready(ctx context.Context) error
}

var _ Analytics = (*services.AnalyticsService)(nil)

// Expenses is the write side, backed by the upstream API.
type Expenses interface {
	CreateExpense(ctx context.Context, d services.ExpenseDraft) error
	UpdateExpense(ctx context.Context, id string, d services.ExpenseDraft) error
	DeleteExpense(ctx context.Context, id string) error
	Profile(ctx context.Context) (remote.Profile, error)
	UpdateProfile(ctx context.Context, p remote.Profile) (remote.Profile, error)
}

var _ Expenses = (*services.ExpenseService)(nil)

// Options tunes the server's middleware.
type Options struct {
	Logger         *ledgerlog.Logger
	RequestTimeout time.Duration
	RefreshLimit   ratelimit.Config
	// Expenses enables the write and profile routes when set.
	Expenses Expenses
	// TrustedProxies are CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string
}

type Server struct {
	http.Server
	analytics Analytics
	expenses  Expenses
	logger    *ledgerlog.Logger
	tracer    *trace.Middleware
	detector  *security.Detector
	limiter   *ratelimit.Limiter
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, a Analytics, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = ledgerlog.New(ledgerlog.Config{Component: ledgerlog.ComponentHTTP})
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.RefreshLimit.RequestsPerWindow <= 0 {
		opts.RefreshLimit = ratelimit.Config{RequestsPerWindow: 6, Window: time.Minute}
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, ledgerlog.FieldError, err)
		}
	}
	s := &Server{
		analytics: a,
		expenses:  opts.Expenses,
		logger:    logger,
		tracer:    trace.NewMiddleware(logger, detector.ExtractClientIP),
		detector:  detector,
		limiter:   ratelimit.NewLimiter(opts.RefreshLimit),
		now:       time.Now,
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(detector.Middleware)
	r.Use(chimw.Timeout(opts.RequestTimeout))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/report", s.handleReport)
			r.Get("/monthly", s.handleMonthly)
			r.Get("/categories", s.handleCategories)
			r.Get("/summary", s.handleSummary)
			r.Get("/years", s.handleYears)
		})
		r.Get("/categories/suggest", s.handleSuggest)
		r.Get("/expenses", s.handleExpenses)
		r.Get("/issues", s.handleIssues)
		r.With(s.limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)).
			Post("/refresh", s.handleRefresh)

		if s.expenses != nil {
			r.Post("/expenses", s.handleCreateExpense)
			r.Put("/expenses/{id}", s.handleUpdateExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)
			r.Get("/profile", s.handleProfile)
			r.Put("/profile", s.handleUpdateProfile)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics returns the request counters of the server's middleware.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}
