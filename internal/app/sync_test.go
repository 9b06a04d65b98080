package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/psp"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
)

type feeRecordKey struct {
	paymentID    uuid.UUID
	internalType string
}

type fakeRepo struct {
	tenants          map[uuid.UUID]*domain.TenantPSPConfig
	payments         map[uuid.UUID]*domain.Payment
	feeRecords       map[feeRecordKey]*domain.FeeRecord
	cacheEntries     map[string]*domain.CachedTransactionFee
	rateTables       map[string]*domain.SettlementRateTable
	materializeCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tenants:      make(map[uuid.UUID]*domain.TenantPSPConfig),
		payments:     make(map[uuid.UUID]*domain.Payment),
		feeRecords:   make(map[feeRecordKey]*domain.FeeRecord),
		cacheEntries: make(map[string]*domain.CachedTransactionFee),
		rateTables:   make(map[string]*domain.SettlementRateTable),
	}
}

func (r *fakeRepo) ListConfirmedPayments(ctx context.Context, tenantID uuid.UUID, opts store.PaymentQueryOptions) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, payment := range r.payments {
		if payment.TenantID != tenantID || payment.State != domain.PaymentStateConfirmed {
			continue
		}
		if len(opts.Providers) > 0 {
			match := false
			for _, p := range opts.Providers {
				if payment.Provider == p {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if opts.From != nil && payment.PaymentDate.Before(*opts.From) {
			continue
		}
		if opts.To != nil && !payment.PaymentDate.Before(*opts.To) {
			continue
		}
		out = append(out, *payment)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) FindPaymentByID(ctx context.Context, tenantID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, ok := r.payments[paymentID]
	if !ok || payment.TenantID != tenantID {
		return nil, store.ErrPaymentNotFound
	}
	clone := *payment
	return &clone, nil
}

func (r *fakeRepo) HasFeeRecord(ctx context.Context, paymentID uuid.UUID, internalType string) (bool, error) {
	_, ok := r.feeRecords[feeRecordKey{paymentID, internalType}]
	return ok, nil
}

func (r *fakeRepo) MaterializeFeeRecord(ctx context.Context, payment *domain.Payment, fee *domain.FeeRecord, annotation *domain.PSPFeeAnnotation) error {
	r.materializeCalls++
	r.feeRecords[feeRecordKey{fee.PaymentID, fee.InternalType}] = fee
	stored, ok := r.payments[payment.ID]
	if !ok {
		return store.ErrPaymentNotFound
	}
	stored.Info.PSPFees = annotation
	return nil
}

func (r *fakeRepo) GetFreshCachedTransactionFee(ctx context.Context, tenantID uuid.UUID, provider, transactionID string, maxAge time.Duration) (*domain.CachedTransactionFee, error) {
	entry, ok := r.cacheEntries[provider+"/"+transactionID]
	if !ok || time.Since(entry.Modified) > maxAge {
		return nil, store.ErrCacheMiss
	}
	return entry, nil
}

func (r *fakeRepo) UpsertCachedTransactionFee(ctx context.Context, entry *domain.CachedTransactionFee) error {
	entry.Modified = time.Now()
	r.cacheEntries[entry.Provider+"/"+entry.TransactionID] = entry
	return nil
}

func (r *fakeRepo) GetSettlementRateTable(ctx context.Context, tenantID uuid.UUID, settlementID string) (*domain.SettlementRateTable, error) {
	table, ok := r.rateTables[settlementID]
	if !ok {
		return nil, store.ErrRateTableNotFound
	}
	return table, nil
}

func (r *fakeRepo) CreateSettlementRateTable(ctx context.Context, table *domain.SettlementRateTable) error {
	if _, exists := r.rateTables[table.SettlementID]; !exists {
		r.rateTables[table.SettlementID] = table
	}
	return nil
}

func (r *fakeRepo) GetTenantPSPConfig(ctx context.Context, tenantID uuid.UUID) (*domain.TenantPSPConfig, error) {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return nil, store.ErrTenantConfigNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (r *fakeRepo) UpdateMollieOAuthTokens(ctx context.Context, tenantID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.MollieAccessToken = accessToken
	cfg.MollieRefreshToken = refreshToken
	cfg.MollieTokenExpiresAt = &expiresAt
	return nil
}

func (r *fakeRepo) SetMollieOAuthConnected(ctx context.Context, tenantID uuid.UUID, clientID, clientSecret, accessToken, refreshToken string, expiresAt time.Time) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.MollieClientID = clientID
	cfg.MollieClientSecret = clientSecret
	cfg.MollieAccessToken = accessToken
	cfg.MollieRefreshToken = refreshToken
	cfg.MollieTokenExpiresAt = &expiresAt
	cfg.MollieOAuthConnected = true
	return nil
}

func (r *fakeRepo) DisconnectMollieOAuth(ctx context.Context, tenantID uuid.UUID) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.MollieAccessToken = ""
	cfg.MollieRefreshToken = ""
	cfg.MollieTokenExpiresAt = nil
	cfg.MollieOAuthConnected = false
	return nil
}

func (r *fakeRepo) UpdateLastKnownRates(ctx context.Context, tenantID uuid.UUID, rates domain.RateTable) error {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return store.ErrTenantConfigNotFound
	}
	cfg.LastKnownRates = rates
	return nil
}

func (r *fakeRepo) LastKnownRates(ctx context.Context, tenantID uuid.UUID) (domain.RateTable, error) {
	cfg, ok := r.tenants[tenantID]
	if !ok {
		return nil, store.ErrTenantConfigNotFound
	}
	return cfg.LastKnownRates, nil
}

type fakeGateway struct {
	provider string
	results  map[string]*domain.FeeResult
	errs     map[string]error
	calls    int
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) FetchFee(ctx context.Context, transactionID string) (*domain.FeeResult, error) {
	g.calls++
	if err, ok := g.errs[transactionID]; ok {
		return nil, err
	}
	result, ok := g.results[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", psp.ErrNotFound, transactionID)
	}
	return result, nil
}

type fakeGatewayFactory struct {
	gateways map[string]*fakeGateway
}

func (f *fakeGatewayFactory) GatewayFor(cfg *domain.TenantPSPConfig, provider, accessToken string) (psp.Gateway, error) {
	gateway, ok := f.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", psp.ErrNotConfigured, provider)
	}
	return gateway, nil
}

type fakePublisher struct {
	published []*domain.SyncResult
}

func (p *fakePublisher) PublishFeeSyncCompleted(ctx context.Context, tenantID uuid.UUID, result *domain.SyncResult) error {
	p.published = append(p.published, result)
	return nil
}

type syncFixture struct {
	repo      *fakeRepo
	factory   *fakeGatewayFactory
	publisher *fakePublisher
	service   *Service
	tenantID  uuid.UUID
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	repo := newFakeRepo()
	tenantID := uuid.New()
	repo.tenants[tenantID] = &domain.TenantPSPConfig{
		TenantID:      tenantID,
		MollieEnabled: true,
		MollieAPIKey:  "live_key",
	}

	factory := &fakeGatewayFactory{gateways: make(map[string]*fakeGateway)}
	publisher := &fakePublisher{}
	oauth := &fakeOAuth{token: &mollieoauth.Token{AccessToken: "at_1", RefreshToken: "rt_1", ExpiresIn: 3600}}
	creds := NewCredentialManager(repo, oauth)
	service := NewService(repo, creds, oauth, NewLocalTenantLocker(), publisher, factory, []byte("state-secret"), 500)

	return &syncFixture{repo: repo, factory: factory, publisher: publisher, service: service, tenantID: tenantID}
}

func (f *syncFixture) addPayment(provider, transactionID string, amountMinor int64) *domain.Payment {
	payment := &domain.Payment{
		ID:          uuid.New(),
		TenantID:    f.tenantID,
		OrderCode:   "ORD-" + transactionID,
		Provider:    provider,
		State:       domain.PaymentStateConfirmed,
		AmountMinor: amountMinor,
		Currency:    "EUR",
		PaymentDate: time.Now().Add(-24 * time.Hour),
		Info:        domain.PaymentInfo{TransactionID: transactionID},
	}
	f.repo.payments[payment.ID] = payment
	return payment
}

func (f *syncFixture) addGateway(provider string) *fakeGateway {
	gateway := &fakeGateway{
		provider: provider,
		results:  make(map[string]*domain.FeeResult),
		errs:     make(map[string]error),
	}
	f.factory.gateways[provider] = gateway
	return gateway
}

func idealFeeResult() *domain.FeeResult {
	return &domain.FeeResult{
		GrossMinor:   5000,
		FeeMinor:     29,
		NetMinor:     4971,
		Currency:     "EUR",
		SettlementID: "stl_1",
		Status:       "ok",
		Details:      "iDEAL @ settlement rates (fixed 0.29 + 0%)",
		Source:       domain.FeeSourceSettlementRates,
	}
}

func TestSyncPaymentsEndToEnd(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = idealFeeResult()

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SyncedPayments != 1 || result.FailedPayments != 0 {
		t.Fatalf("expected 1 synced 0 failed, got %+v", result)
	}
	if result.TotalFeesMinor != 29 {
		t.Errorf("expected total fees 29, got %d", result.TotalFeesMinor)
	}

	stored := f.repo.payments[payment.ID]
	if stored.Info.PSPFees == nil {
		t.Fatal("expected fee annotation written")
	}
	if stored.Info.PSPFees.FeeAmount != "0.29" {
		t.Errorf("expected fee amount 0.29, got %q", stored.Info.PSPFees.FeeAmount)
	}
	if stored.Info.PSPFees.SettlementAmount != "49.71" {
		t.Errorf("expected settlement amount 49.71, got %q", stored.Info.PSPFees.SettlementAmount)
	}
	if f.repo.materializeCalls != 1 {
		t.Errorf("expected 1 materialize call, got %d", f.repo.materializeCalls)
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("expected completion event published, got %d", len(f.publisher.published))
	}
}

func TestSyncPaymentsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = idealFeeResult()

	opts := domain.SyncOptions{SkipAlreadySynced: true}
	if _, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.SkippedPayments != 1 || result.SyncedPayments != 0 {
		t.Errorf("expected re-run to skip, got %+v", result)
	}
	if gateway.calls != 1 {
		t.Errorf("expected no processor traffic on re-run, got %d calls", gateway.calls)
	}
	if f.repo.materializeCalls != 1 {
		t.Errorf("expected no second write, got %d", f.repo.materializeCalls)
	}
}

func TestSyncPaymentsRerunWithoutSkipFlagStillSkips(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = idealFeeResult()

	opts := domain.SyncOptions{SkipAlreadySynced: false}
	if _, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, opts); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// A changed upstream fee must not leak into a non-forced re-run.
	changed := idealFeeResult()
	changed.FeeMinor = 999
	gateway.results["tr_1"] = changed

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, opts)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.SkippedPayments != 1 || result.SyncedPayments != 0 {
		t.Fatalf("expected non-forced re-run to skip, got %+v", result)
	}
	if gateway.calls != 1 {
		t.Errorf("expected no processor traffic on re-run, got %d calls", gateway.calls)
	}
	if f.repo.materializeCalls != 1 {
		t.Errorf("expected no second write, got %d", f.repo.materializeCalls)
	}
	if got := f.repo.payments[payment.ID].Info.PSPFees.FeeAmount; got != "0.29" {
		t.Errorf("expected original fee preserved, got %q", got)
	}
}

func TestSyncPaymentsForceRecomputes(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = idealFeeResult()

	if _, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{Force: true, SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if result.SyncedPayments != 1 {
		t.Errorf("expected forced recompute, got %+v", result)
	}
	if f.repo.materializeCalls != 2 {
		t.Errorf("expected a second write under force, got %d", f.repo.materializeCalls)
	}
}

func TestSyncPaymentsDryRunWritesNothing(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = idealFeeResult()

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{DryRun: true, SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SyncedPayments != 1 || result.TotalFeesMinor != 29 {
		t.Errorf("dry run should still count outcomes, got %+v", result)
	}
	if f.repo.materializeCalls != 0 {
		t.Errorf("dry run must not write, got %d calls", f.repo.materializeCalls)
	}
	if f.repo.payments[payment.ID].Info.PSPFees != nil {
		t.Error("dry run must not annotate the payment")
	}
	if len(f.publisher.published) != 0 {
		t.Error("dry run must not publish a completion event")
	}
}

func TestSyncPaymentsMissingTransactionIDFails(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "", 5000)
	f.addGateway(domain.ProviderMollieIdeal)

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FailedPayments != 1 {
		t.Fatalf("expected 1 failed, got %+v", result)
	}
	if !strings.Contains(result.Errors[0].Error, "transaction id") {
		t.Errorf("unexpected failure reason %q", result.Errors[0].Error)
	}
}

func TestSyncPaymentsFailureDoesNotAbortBatch(t *testing.T) {
	f := newSyncFixture(t)
	bad := f.addPayment(domain.ProviderMollieIdeal, "tr_bad", 1000)
	good := f.addPayment(domain.ProviderMollieIdeal, "tr_good", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.errs["tr_bad"] = fmt.Errorf("processor exploded")
	gateway.results["tr_good"] = idealFeeResult()

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{bad.ID, good.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SyncedPayments != 1 || result.FailedPayments != 1 {
		t.Fatalf("expected 1 synced 1 failed, got %+v", result)
	}
	if result.Errors[0].PaymentID != bad.ID {
		t.Errorf("expected failure recorded for the bad payment, got %+v", result.Errors)
	}
}

func TestSyncPaymentsUnknownPaymentCountedInTotal(t *testing.T) {
	f := newSyncFixture(t)
	good := f.addPayment(domain.ProviderMollieIdeal, "tr_good", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_good"] = idealFeeResult()
	missing := uuid.New()

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{missing, good.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalPayments != 2 {
		t.Errorf("expected the unresolvable payment counted in the total, got %d", result.TotalPayments)
	}
	if got := result.SyncedPayments + result.SkippedPayments + result.FailedPayments; got != result.TotalPayments {
		t.Errorf("expected total %d to equal synced+skipped+failed %d", result.TotalPayments, got)
	}
	if result.FailedPayments != 1 || result.Errors[0].PaymentID != missing {
		t.Errorf("expected the missing payment recorded as failed, got %+v", result)
	}
}

func TestSyncPaymentsZeroFeeSkips(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_1", 5000)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_1"] = &domain.FeeResult{
		GrossMinor: 5000, FeeMinor: 0, NetMinor: 5000, Currency: "EUR",
		Details: "rate table contains only adjustment categories; no fee applies",
		Source:  domain.FeeSourceSettlementRates,
	}

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SkippedPayments != 1 || result.SyncedPayments != 0 {
		t.Errorf("expected zero-fee skip, got %+v", result)
	}
	if f.repo.materializeCalls != 0 {
		t.Errorf("zero fee must not write a record, got %d", f.repo.materializeCalls)
	}
}

func TestSyncPaymentsUnconfiguredProviderSkips(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderSumUp, "TX-1", 5000)
	payment.Info = domain.PaymentInfo{SumUpTransaction: &domain.SumUpTransactionRef{TransactionCode: "TX-1"}}

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SkippedPayments != 1 || result.FailedPayments != 0 {
		t.Errorf("expected unconfigured provider to skip, got %+v", result)
	}
}

type paymentOnlyMollieAPI struct {
	payment *domain.MolliePayment
}

func (a *paymentOnlyMollieAPI) GetPayment(ctx context.Context, paymentID string) (*domain.MolliePayment, error) {
	return a.payment, nil
}

type noRatesSource struct{}

func (noRatesSource) RatesForSettlement(ctx context.Context, settlementID string) (domain.RateTable, error) {
	return nil, nil
}

func (noRatesSource) FallbackRates(ctx context.Context) (domain.RateTable, error) {
	return nil, nil
}

type singleGatewayFactory struct {
	gateway psp.Gateway
}

func (f *singleGatewayFactory) GatewayFor(cfg *domain.TenantPSPConfig, provider, accessToken string) (psp.Gateway, error) {
	return f.gateway, nil
}

func TestSyncPaymentsEstimatesWithoutRates(t *testing.T) {
	f := newSyncFixture(t)
	payment := f.addPayment(domain.ProviderMollieIdeal, "tr_est", 5000)

	// A real gateway with no rate table anywhere falls through to the
	// published schedule: iDEAL is a flat 0.29.
	api := &paymentOnlyMollieAPI{payment: &domain.MolliePayment{
		ID:     "tr_est",
		Status: "paid",
		Method: "ideal",
		Amount: domain.MollieAmount{Value: "50.00", Currency: "EUR"},
	}}
	gateway := psp.NewMollieGateway(f.tenantID, domain.ProviderMollieIdeal, api, noRatesSource{}, f.repo, time.Hour)
	f.service.gateways = &singleGatewayFactory{gateway: gateway}

	result, err := f.service.SyncPayments(context.Background(), f.tenantID, []uuid.UUID{payment.ID}, domain.SyncOptions{SkipAlreadySynced: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SyncedPayments != 1 || result.FailedPayments != 0 {
		t.Fatalf("expected 1 synced 0 failed, got %+v", result)
	}
	if result.TotalFeesMinor != 29 {
		t.Errorf("expected flat estimated fee 29, got %d", result.TotalFeesMinor)
	}

	stored := f.repo.payments[payment.ID]
	if stored.Info.PSPFees == nil {
		t.Fatal("expected fee annotation written")
	}
	if stored.Info.PSPFees.FeeAmount != "0.29" {
		t.Errorf("expected fee amount 0.29, got %q", stored.Info.PSPFees.FeeAmount)
	}
	if !strings.Contains(stored.Info.PSPFees.FeeDetails, "estimated") {
		t.Errorf("expected estimation noted in details, got %q", stored.Info.PSPFees.FeeDetails)
	}
}

func TestSyncPaymentsLockContention(t *testing.T) {
	f := newSyncFixture(t)
	locker := NewLocalTenantLocker()
	f.service.locker = locker

	release, err := locker.Acquire(context.Background(), f.tenantID)
	if err != nil {
		t.Fatalf("setup lock failed: %v", err)
	}
	defer release()

	_, err = f.service.SyncPayments(context.Background(), f.tenantID, nil, domain.SyncOptions{})
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
}

func TestSyncByDateRange(t *testing.T) {
	f := newSyncFixture(t)
	inWindow := f.addPayment(domain.ProviderMollieIdeal, "tr_in", 5000)
	outOfWindow := f.addPayment(domain.ProviderMollieIdeal, "tr_out", 5000)
	outOfWindow.PaymentDate = time.Now().AddDate(0, 0, -40)
	gateway := f.addGateway(domain.ProviderMollieIdeal)
	gateway.results["tr_in"] = idealFeeResult()

	result, err := f.service.SyncByDateRange(context.Background(), f.tenantID, domain.DateRangeSyncOptions{DaysBack: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalPayments != 1 || result.SyncedPayments != 1 {
		t.Fatalf("expected only the in-window payment, got %+v", result)
	}
	if f.repo.payments[inWindow.ID].Info.PSPFees == nil {
		t.Error("expected in-window payment annotated")
	}
	if f.repo.payments[outOfWindow.ID].Info.PSPFees != nil {
		t.Error("out-of-window payment must be untouched")
	}
}

func TestMollieConnectFlow(t *testing.T) {
	f := newSyncFixture(t)

	authURL, err := f.service.StartMollieConnect(context.Background(), f.tenantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(authURL, "state=") {
		t.Fatalf("expected state in auth url, got %q", authURL)
	}
	state := strings.TrimPrefix(authURL, "https://auth.example/?state=")

	tenantID, err := f.service.CompleteMollieConnect(context.Background(), state, "auth_code_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenantID != f.tenantID {
		t.Errorf("expected tenant %s, got %s", f.tenantID, tenantID)
	}

	cfg := f.repo.tenants[f.tenantID]
	if !cfg.MollieOAuthConnected || cfg.MollieAccessToken != "at_1" {
		t.Errorf("expected connection persisted, got %+v", cfg)
	}

	if err := f.service.DisconnectMollie(context.Background(), f.tenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MollieOAuthConnected || cfg.MollieAccessToken != "" {
		t.Errorf("expected credentials cleared, got %+v", cfg)
	}
}

func TestCompleteMollieConnectRejectsBadState(t *testing.T) {
	f := newSyncFixture(t)
	if _, err := f.service.CompleteMollieConnect(context.Background(), "garbage", "code"); !errors.Is(err, mollieoauth.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSyncPaymentsUnknownTenant(t *testing.T) {
	f := newSyncFixture(t)
	if _, err := f.service.SyncPayments(context.Background(), uuid.New(), nil, domain.SyncOptions{}); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}
