/**
 * @description
 * This file contains the HTTP handlers for the psp-fee-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the
 * reconciliation logic.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/app"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
)

// FeeSyncHandlers holds the application service that handlers will use.
type FeeSyncHandlers struct {
	service *app.Service
}

// NewFeeSyncHandlers creates the handler set.
func NewFeeSyncHandlers(service *app.Service) *FeeSyncHandlers {
	return &FeeSyncHandlers{service: service}
}

type syncRequest struct {
	PaymentIDs        []uuid.UUID `json:"payment_ids,omitempty"`
	From              *time.Time  `json:"from,omitempty"`
	To                *time.Time  `json:"to,omitempty"`
	DaysBack          int         `json:"days_back,omitempty"`
	MaxPayments       int         `json:"max_payments,omitempty"`
	Force             bool        `json:"force"`
	DryRun            bool        `json:"dry_run"`
	SkipAlreadySynced *bool       `json:"skip_already_synced,omitempty"`
}

// SyncHandler runs a fee sync for one tenant. An explicit payment_ids list
// syncs exactly those payments; otherwise days_back selects a date window
// (default 30 days).
func (h *FeeSyncHandlers) SyncHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
	}

	var result *domain.SyncResult
	var err error
	if len(req.PaymentIDs) > 0 {
		skip := true
		if req.SkipAlreadySynced != nil {
			skip = *req.SkipAlreadySynced
		}
		result, err = h.service.SyncPayments(r.Context(), tenantID, req.PaymentIDs, domain.SyncOptions{
			Force:             req.Force,
			DryRun:            req.DryRun,
			SkipAlreadySynced: skip,
		})
	} else {
		daysBack := req.DaysBack
		if daysBack <= 0 && req.From == nil {
			daysBack = 30
		}
		result, err = h.service.SyncByDateRange(r.Context(), tenantID, domain.DateRangeSyncOptions{
			From:        req.From,
			To:          req.To,
			DaysBack:    daysBack,
			MaxPayments: req.MaxPayments,
			Force:       req.Force,
			DryRun:      req.DryRun,
		})
	}
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *FeeSyncHandlers) respondSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrTenantNotFound):
		respondWithError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, app.ErrSyncInProgress):
		respondWithError(w, http.StatusConflict, "a sync is already running for this tenant")
	default:
		log.Printf("level=error component=api msg=\"sync failed\" error=%v", err)
		respondWithError(w, http.StatusInternalServerError, "sync failed")
	}
}

type connectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// ConnectMollieHandler starts the OAuth authorization flow and returns the
// URL the tenant's operator must visit.
func (h *FeeSyncHandlers) ConnectMollieHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(w, r)
	if !ok {
		return
	}

	authURL, err := h.service.StartMollieConnect(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, app.ErrTenantNotFound) {
			respondWithError(w, http.StatusNotFound, "tenant not found")
			return
		}
		log.Printf("level=error component=api msg=\"connect start failed\" tenant_id=%s error=%v", tenantID, err)
		respondWithError(w, http.StatusInternalServerError, "could not start authorization")
		return
	}

	respondWithJSON(w, http.StatusOK, connectResponse{AuthorizationURL: authURL})
}

// MollieCallbackHandler finishes the OAuth flow. It is called by the processor
// redirect and authenticated by the signed state token, not the API key.
func (h *FeeSyncHandlers) MollieCallbackHandler(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		respondWithError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	tenantID, err := h.service.CompleteMollieConnect(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, mollieoauth.ErrInvalidState):
			respondWithError(w, http.StatusBadRequest, "invalid state token")
		case errors.Is(err, app.ErrTenantNotFound):
			respondWithError(w, http.StatusNotFound, "tenant not found")
		default:
			log.Printf("level=error component=api msg=\"oauth callback failed\" error=%v", err)
			respondWithError(w, http.StatusBadGateway, "authorization exchange failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"tenant_id": tenantID.String(),
		"status":    "connected",
	})
}

// DisconnectMollieHandler revokes and clears the tenant's OAuth connection.
func (h *FeeSyncHandlers) DisconnectMollieHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.DisconnectMollie(r.Context(), tenantID); err != nil {
		if errors.Is(err, app.ErrTenantNotFound) {
			respondWithError(w, http.StatusNotFound, "tenant not found")
			return
		}
		log.Printf("level=error component=api msg=\"disconnect failed\" tenant_id=%s error=%v", tenantID, err)
		respondWithError(w, http.StatusInternalServerError, "disconnect failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func tenantIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid tenant id")
		return uuid.Nil, false
	}
	return tenantID, true
}

// respondWithError sends a JSON error payload.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON marshals a payload and writes it with the given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to marshal response\" error=%v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
