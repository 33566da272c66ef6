package httpserver

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/masterco/lahza-server/internal/errors"
)

// adminMetricsAuth protects the metrics endpoint with an API key. With no key
// configured the endpoint is open; otherwise requests need
// "Authorization: Bearer {key}".
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				resp := apperrors.NewErrorResponse(apperrors.ErrCodeInvalidField, "invalid or missing admin API key", nil)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(resp)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
