package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware answers preflight requests for the listed origins. "*"
// allows any origin; the request origin is echoed so credentials still work.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
			break
		}
	}
	if opts.AllowOriginFunc == nil {
		opts.AllowedOrigins = allowedOrigins
	}
	return cors.New(opts).Handler
}
