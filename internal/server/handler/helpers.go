package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/openpredict/marketd/internal/domain"
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

// writeDomainError maps an error from the engine or catalog onto an HTTP
// status and sends it. Validation problems are the client's fault, sequencing
// problems are conflicts, settlement problems are upstream failures.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDivisionByZero), errors.Is(err, domain.ErrInvalidOption):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var ve *domain.ValidationError
		var ste *domain.StateError
		if errors.As(err, &ve) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if errors.As(err, &ste) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if se, ok := domain.AsSettlement(err); ok {
			status := http.StatusBadGateway
			if se.Kind == domain.SettlementTimeout {
				status = http.StatusGatewayTimeout
			}
			writeError(w, status, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
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

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// optionIndexParam parses the {option} path segment.
func optionIndexParam(r *http.Request) (int, error) {
	raw := pathParam(r, "option")
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return 0, errors.New("invalid option index")
	}
	return idx, nil
}

// userParam extracts the acting user from the X-User-ID header or the user
// query parameter.
func userParam(r *http.Request) string {
	if u := r.Header.Get("X-User-ID"); u != "" {
		return u
	}
	return r.URL.Query().Get("user")
}
