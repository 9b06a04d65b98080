package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/app"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/psp"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
)

const testAPIKey = "internal-test-key"

type stubRepo struct {
	tenants   map[uuid.UUID]*domain.TenantPSPConfig
	payments  map[uuid.UUID]*domain.Payment
	writes    int
	listQuery store.PaymentQueryOptions
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		tenants:  make(map[uuid.UUID]*domain.TenantPSPConfig),
		payments: make(map[uuid.UUID]*domain.Payment),
	}
}

func (r *stubRepo) ListConfirmedPayments(ctx context.Context, tenantID uuid.UUID, opts store.PaymentQueryOptions) ([]domain.Payment, error) {
	r.listQuery = opts
	var out []domain.Payment
	for _, p := range r.payments {
		if p.TenantID == tenantID && p.State == domain.PaymentStateConfirmed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubRepo) FindPaymentByID(ctx context.Context, tenantID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	p, ok := r.payments[paymentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *stubRepo) HasFeeRecord(ctx context.Context, paymentID uuid.UUID, internalType string) (bool, error) {
	return false, nil
}

func (r *stubRepo) MaterializeFeeRecord(ctx context.Context, payment *domain.Payment, fee *domain.FeeRecord, annotation *domain.PSPFeeAnnotation) error {
	r.writes++
	return nil
}

func (r *stubRepo) GetFreshCachedTransactionFee(ctx context.Context, tenantID uuid.UUID, provider, transactionID string, maxAge time.Duration) (*domain.CachedTransactionFee, error) {
	return nil, store.ErrCacheMiss
}

func (r *stubRepo) UpsertCachedTransactionFee(ctx context.Context, entry *domain.CachedTransactionFee) error {
	return nil
}

func (r *stubRepo) GetSettlementRateTable(ctx context.Context, tenantID uuid.UUID, settlementID string) (*domain.SettlementRateTable, error) {
	return nil, store.ErrRateTableNotFound
}

func (r *stubRepo) CreateSettlementRateTable(ctx context.Context, table *domain.SettlementRateTable) error {
	return nil
}

func (r *stubRepo) GetTenantPSPConfig(ctx context.Context, tenantID uuid.UUID) (*domain.TenantPSPConfig, error) {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return nil, store.ErrTenantConfigNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (r *stubRepo) UpdateMollieOAuthTokens(ctx context.Context, tenantID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (r *stubRepo) SetMollieOAuthConnected(ctx context.Context, tenantID uuid.UUID, clientID, clientSecret, accessToken, refreshToken string, expiresAt time.Time) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.MollieOAuthConnected = true
	cfg.MollieAccessToken = accessToken
	return nil
}

func (r *stubRepo) DisconnectMollieOAuth(ctx context.Context, tenantID uuid.UUID) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.MollieOAuthConnected = false
	cfg.MollieAccessToken = ""
	return nil
}

func (r *stubRepo) UpdateLastKnownRates(ctx context.Context, tenantID uuid.UUID, rates domain.RateTable) error {
	return nil
}

func (r *stubRepo) LastKnownRates(ctx context.Context, tenantID uuid.UUID) (domain.RateTable, error) {
	return nil, nil
}

type stubOAuth struct{}

func (stubOAuth) AuthorizationURL(state string) string {
	return "https://auth.example/?state=" + state
}

func (stubOAuth) ExchangeCode(ctx context.Context, code string) (*mollieoauth.Token, error) {
	return &mollieoauth.Token{AccessToken: "at_1", RefreshToken: "rt_1", ExpiresIn: 3600}, nil
}

func (stubOAuth) RefreshToken(ctx context.Context, refreshToken string) (*mollieoauth.Token, error) {
	return nil, fmt.Errorf("not implemented")
}

func (stubOAuth) RevokeToken(ctx context.Context, refreshToken string) error { return nil }

type stubGateway struct{}

func (stubGateway) Provider() string { return domain.ProviderMollieIdeal }

func (stubGateway) FetchFee(ctx context.Context, transactionID string) (*domain.FeeResult, error) {
	return &domain.FeeResult{
		GrossMinor: 5000, FeeMinor: 29, NetMinor: 4971, Currency: "EUR",
		Details: "iDEAL", Source: domain.FeeSourceSettlementRates,
	}, nil
}

type stubFactory struct{}

func (stubFactory) GatewayFor(cfg *domain.TenantPSPConfig, provider, accessToken string) (psp.Gateway, error) {
	return stubGateway{}, nil
}

func newTestRouter(repo *stubRepo) http.Handler {
	oauth := stubOAuth{}
	creds := app.NewCredentialManager(repo, oauth)
	service := app.NewService(repo, creds, oauth, app.NewLocalTenantLocker(), nil, stubFactory{}, []byte("state-secret"), 500)
	return FeeSyncRoutes(NewFeeSyncHandlers(service), testAPIKey)
}

func seedTenant(repo *stubRepo) uuid.UUID {
	tenantID := uuid.New()
	repo.tenants[tenantID] = &domain.TenantPSPConfig{
		TenantID:      tenantID,
		MollieEnabled: true,
		MollieAPIKey:  "live_key",
	}
	return tenantID
}

func TestSyncEndpointRequiresAPIKey(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/"+uuid.NewString()+"/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without api key, got %d", rec.Code)
	}
}

func TestSyncEndpointInvalidTenantID(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/not-a-uuid/sync", nil)
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad tenant id, got %d", rec.Code)
	}
}

func TestSyncEndpointUnknownTenant(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/"+uuid.NewString()+"/sync", nil)
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tenant, got %d", rec.Code)
	}
}

func TestSyncEndpointExplicitPayments(t *testing.T) {
	repo := newStubRepo()
	tenantID := seedTenant(repo)
	paymentID := uuid.New()
	repo.payments[paymentID] = &domain.Payment{
		ID:          paymentID,
		TenantID:    tenantID,
		Provider:    domain.ProviderMollieIdeal,
		State:       domain.PaymentStateConfirmed,
		AmountMinor: 5000,
		Currency:    "EUR",
		PaymentDate: time.Now(),
		Info:        domain.PaymentInfo{TransactionID: "tr_1"},
	}
	router := newTestRouter(repo)

	body, _ := json.Marshal(map[string]interface{}{"payment_ids": []string{paymentID.String()}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/"+tenantID.String()+"/sync", bytes.NewReader(body))
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.SyncResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if result.SyncedPayments != 1 || result.TotalFeesMinor != 29 {
		t.Errorf("unexpected result %+v", result)
	}
	if repo.writes != 1 {
		t.Errorf("expected one fee write, got %d", repo.writes)
	}
}

func TestSyncEndpointExplicitWindow(t *testing.T) {
	repo := newStubRepo()
	tenantID := seedTenant(repo)
	router := newTestRouter(repo)

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC)
	body, _ := json.Marshal(map[string]interface{}{
		"from":         from.Format(time.RFC3339),
		"to":           to.Format(time.RFC3339),
		"max_payments": 50,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/"+tenantID.String()+"/sync", bytes.NewReader(body))
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.listQuery.From == nil || !repo.listQuery.From.Equal(from) {
		t.Errorf("expected from %v passed to the query, got %v", from, repo.listQuery.From)
	}
	if repo.listQuery.To == nil || !repo.listQuery.To.Equal(to) {
		t.Errorf("expected to %v passed to the query, got %v", to, repo.listQuery.To)
	}
	if repo.listQuery.Limit != 50 {
		t.Errorf("expected limit 50, got %d", repo.listQuery.Limit)
	}
}

func TestConnectAndCallbackFlow(t *testing.T) {
	repo := newStubRepo()
	tenantID := seedTenant(repo)
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants/"+tenantID.String()+"/mollie/connect", nil)
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var connect connectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &connect); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	state := connect.AuthorizationURL[len("https://auth.example/?state="):]

	// The callback is processor-facing and must not require the api key.
	callback := httptest.NewRequest(http.MethodGet, "/oauth/mollie/callback?state="+state+"&code=auth_code", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, callback)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on callback, got %d: %s", rec.Code, rec.Body.String())
	}
	if !repo.tenants[tenantID].MollieOAuthConnected {
		t.Error("expected tenant connected after callback")
	}
}

func TestCallbackRejectsTamperedState(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodGet, "/oauth/mollie/callback?state=tampered&code=auth_code", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a tampered state, got %d", rec.Code)
	}
}

func TestDisconnectEndpoint(t *testing.T) {
	repo := newStubRepo()
	tenantID := seedTenant(repo)
	repo.tenants[tenantID].MollieOAuthConnected = true
	repo.tenants[tenantID].MollieRefreshToken = "rt_1"
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/"+tenantID.String()+"/mollie/connection", nil)
	req.Header.Set(internalAPIKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.tenants[tenantID].MollieOAuthConnected {
		t.Error("expected tenant disconnected")
	}
}

func TestHealthEndpointIsOpen(t *testing.T) {
	router := newTestRouter(newStubRepo())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
