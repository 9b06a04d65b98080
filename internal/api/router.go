/**
 * @description
 * This file sets up the HTTP router for the psp-fee-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * internal API key middleware. The OAuth callback lives outside the protected
 * group because the processor redirect cannot carry the internal key.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FeeSyncRoutes creates and returns the router for the fee service.
func FeeSyncRoutes(h *FeeSyncHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Processor-facing OAuth callback, authenticated by the signed state token.
	r.Get("/oauth/mollie/callback", h.MollieCallbackHandler)

	// Internal endpoints protected by the shared API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Post("/api/v1/tenants/{tenantID}/sync", h.SyncHandler)
		r.Post("/api/v1/tenants/{tenantID}/mollie/connect", h.ConnectMollieHandler)
		r.Delete("/api/v1/tenants/{tenantID}/mollie/connection", h.DisconnectMollieHandler)
	})

	return r
}
