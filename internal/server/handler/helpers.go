package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a sentinel error from the engine onto an HTTP status
// and body. Unknown errors return false so the caller can log and 500.
func writeDomainError(w http.ResponseWriter, err error) bool {
	for _, m := range []struct {
		target error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrDuplicateSignature, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{domain.ErrCurveInactive, http.StatusConflict},
		{domain.ErrArithmeticOverflow, http.StatusUnprocessableEntity},
		{domain.ErrVerificationFailed, http.StatusUnprocessableEntity},
		{domain.ErrNothingToClaim, http.StatusUnprocessableEntity},
		{domain.ErrClaimTooSoon, http.StatusUnprocessableEntity},
	} {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.target.Error())
			return true
		}
	}
	return false
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0. since/until accept RFC 3339.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &ts
		}
	}
	if v := q.Get("until"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &ts
		}
	}
	return opts
}

// parseUint parses a decimal base-unit amount from a query or body string.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
