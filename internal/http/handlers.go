package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledgerlens/internal/core"
	"ledgerlens/internal/ingest"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/remote"
	"ledgerlens/internal/services"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 until a snapshot can be served.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.analytics.Ready(r.Context()); err != nil {
		ledgerlog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, s.now())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	report, err := s.analytics.Report(r.Context(), f)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r, s.now())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	totals, err := s.analytics.Monthly(r.Context(), year)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "monthly": totals})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, s.now())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	breakdown, err := s.analytics.Categories(r.Context(), f)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filter": f, "categories": breakdown})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, s.now())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	summary, err := s.analytics.Summary(r.Context(), f)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filter": f, "summary": summary})
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.analytics.Years(r.Context())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"years": years})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"), maxQueryLen)
	suggestions, err := s.analytics.Suggest(r.Context(), q)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpReport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "suggestions": suggestions})
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseDayFilter(r)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpLoad, err)
		return
	}
	expenses, err := s.analytics.Expenses(r.Context(), f)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpLoad, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(expenses), "expenses": expenses})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.analytics.Issues(r.Context())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpLoad, err)
		return
	}
	if issues == nil {
		issues = []ingest.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(issues), "issues": issues})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var d services.ExpenseDraft
	if err := decodeBody(w, r, &d); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	if err := s.expenses.CreateExpense(r.Context(), d); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(chi.URLParam(r, "id"), maxQueryLen)
	var d services.ExpenseDraft
	if err := decodeBody(w, r, &d); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	if err := s.expenses.UpdateExpense(r.Context(), id, d); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "id": id})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(chi.URLParam(r, "id"), maxQueryLen)
	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.expenses.Profile(r.Context())
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p remote.Profile
	if err := decodeBody(w, r, &p); err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	updated, err := s.expenses.UpdateProfile(r.Context(), p)
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpWrite, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// handleRefresh drops cached state and queues an upstream pull when a
// worker is reachable.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.analytics.Refresh(r.Context(), "api")
	if err != nil {
		s.writeErrorFor(r.Context(), w, ledgerlog.OpRefresh, err)
		return
	}
	ledgerlog.FromContext(r.Context()).InfoContext(r.Context(), "Refresh requested",
		ledgerlog.FieldOperation, ledgerlog.OpRefresh,
		"queued", outcome.Queued)
	writeJSON(w, http.StatusAccepted, outcome)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	ledgerlog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		ledgerlog.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}
