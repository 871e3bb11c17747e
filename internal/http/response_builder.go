package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ledgerlens/internal/analytics"
	"ledgerlens/internal/core"
	ledgerlog "ledgerlens/internal/log"
	"ledgerlens/internal/remote"
	"ledgerlens/internal/services"
	"ledgerlens/internal/snapshot"
)

// statusClientClosedRequest is reported when the caller went away before
// the answer was ready. Nothing reads it but the access log.
const statusClientClosedRequest = 499

var errBadBody = errors.New("invalid request body")

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErrorFor maps err to a status code and logs server-side failures.
func (s *Server) writeErrorFor(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error(), RequestID: ledgerlog.RequestIDFromContext(ctx)}
	if status >= http.StatusInternalServerError {
		ledgerlog.NewStructuredLogger(ledgerlog.FromContext(ctx)).LogError(ctx, "Request failed", err, op, nil)
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, analytics.ErrMissingYear),
		errors.Is(err, analytics.ErrInvalidYear),
		errors.Is(err, analytics.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, services.ErrInvalidExpense),
		errors.Is(err, services.ErrInvalidProfile),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return upstreamStatus(apiErr.StatusCode)
	}
	if errors.Is(err, remote.ErrNoCredentials) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// upstreamStatus passes client errors about the record through and reports
// everything else from the upstream API as a bad gateway.
func upstreamStatus(code int) int {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return code
	default:
		return http.StatusBadGateway
	}
}
