package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// CORS allows browser clients from any origin to call the API with a bearer token.
func CORS() func(http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Stripe-Signature"}),
		handlers.MaxAge(600),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}
