/**
 * @description
 * HTTP middleware for the psp-fee-service. The service sits behind the
 * platform's internal network, so authentication is a shared internal API key
 * rather than end-user credentials. The OAuth callback is exempt: it is called
 * by the processor and authenticated by the signed state token instead.
 *
 * @dependencies
 * - crypto/subtle: Constant-time key comparison.
 * - net/http: Standard Go library for HTTP functionality.
 */

package api

import (
	"crypto/subtle"
	"log"
	"net/http"
)

const internalAPIKeyHeader = "X-Internal-Api-Key"

// InternalAPIKeyMiddleware rejects requests that do not carry the shared
// internal API key.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				log.Printf("level=error component=api msg=\"internal api key not configured, rejecting request\" path=%s", r.URL.Path)
				respondWithError(w, http.StatusInternalServerError, "service misconfigured")
				return
			}
			provided := r.Header.Get(internalAPIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
