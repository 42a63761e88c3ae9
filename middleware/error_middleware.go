package middleware

import (
	"encoding/json"
	"net/http"

	"cardex-server/utils/errors"

	log "github.com/sirupsen/logrus"
)

// ErrorMiddleware recovers panics and answers with a standardized JSON error
func ErrorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("Panic recovered on %s %s: %v", r.Method, r.URL.Path, rec)
					WriteError(w, errors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes err as an APIError JSON response
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *errors.APIError
	if !errors.As(err, &apiErr) {
		apiErr = errors.Wrap(err, "UNKNOWN_ERROR", "Unexpected error", errors.ErrInternal.Status)
	}
	if apiErr.Status >= 500 {
		log.Errorf("Server error %s (Details: %s)", apiErr.Error(), apiErr.Details)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(apiErr)
}
