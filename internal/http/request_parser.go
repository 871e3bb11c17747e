package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledgerlens/internal/analytics"
)

// maxQueryLen bounds free-text query parameters.
const maxQueryLen = 100

// parseFilter reads year and month query parameters. A missing year means
// the current year; a missing month means the whole year.
func parseFilter(r *http.Request, now time.Time) (analytics.Filter, error) {
	q := r.URL.Query()
	year := strings.TrimSpace(q.Get("year"))
	if year == "" {
		year = strconv.Itoa(now.Year())
	}
	return analytics.ParseFilter(year, q.Get("month"))
}

// parseYear reads the year query parameter, defaulting to the current year.
func parseYear(r *http.Request, now time.Time) (int, error) {
	f, err := parseFilter(r, now)
	if err != nil {
		return 0, err
	}
	return f.Year, nil
}

func parseDayFilter(r *http.Request) (analytics.DayFilter, error) {
	q := r.URL.Query()
	return analytics.ParseDayFilter(q.Get("month"), q.Get("day"))
}

// sanitizeInput removes control characters, trims whitespace and caps the
// length at max runes.
func sanitizeInput(s string, max int) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	if runes := []rune(s); len(runes) > max {
		s = string(runes[:max])
	}
	return s
}
