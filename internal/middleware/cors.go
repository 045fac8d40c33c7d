package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSMiddleware returns CORS configuration for the web player and mobile
// clients. An empty origin list allows every origin.
func CORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,

		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},

		// Allow common headers
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},

		// Expose headers to the client
		ExposedHeaders: []string{
			"Retry-After",
			"X-Request-Id",
		},

		// Allow credentials (cookies, authorization headers)
		AllowCredentials: true,

		// Cache preflight requests for 5 minutes
		MaxAge: 300,
	})
}
