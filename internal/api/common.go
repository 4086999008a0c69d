package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/oura-twin-sync/internal/identity"
	"github.com/pysugar/oura-twin-sync/internal/logging"
)

const dateLayout = "2006-01-02"

// GetOrGenerateRequestID returns X-Request-ID from the request or a fresh short ID.
func GetOrGenerateRequestID(r *http.Request) string {
	if requestID := strings.TrimSpace(r.Header.Get("X-Request-ID")); requestID != "" {
		return requestID
	}
	return logging.GenerateRequestID()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// twinParam parses the {twin} path segment, writing a 404 when it is unknown.
func twinParam(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := identity.Parse(chi.URLParam(r, "twin"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return id, true
}

// dateRange reads optional start and end query parameters. Missing values stay zero.
func dateRange(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time
	q := r.URL.Query()
	if s := q.Get("start"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return start, end, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD", s)
		}
		start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return start, end, fmt.Errorf("invalid end date %q, expected YYYY-MM-DD", s)
		}
		end = t
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return start, end, fmt.Errorf("start %s is after end %s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "***"
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}
