// Package respond holds the JSON and error helpers shared by the API handlers.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kilianp07/kurir/core/dispatch"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error maps err to a status code and writes {"error": "..."}.
func Error(w http.ResponseWriter, err error) {
	JSON(w, StatusOf(err), map[string]string{"error": err.Error()})
}

// StatusOf maps dispatch errors to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrValidation), errors.Is(err, dispatch.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrAssignmentConflict), errors.Is(err, dispatch.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body of at most 1 MiB into v. Malformed bodies are
// validation errors.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrValidation, err)
	}
	return nil
}

// RequireToken wraps next with a bearer token check. An empty token
// disables the check.
func RequireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
