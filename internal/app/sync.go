/**
 * @description
 * This file contains the core business logic for the psp-fee-service: the
 * idempotent batch sync that reconciles processor fees onto payments, the
 * date-range variant driven by the messaging layer, and the tenant-facing
 * OAuth connect/disconnect operations.
 *
 * Sync invariants:
 *   - At most one run per tenant at a time (tenant lock).
 *   - A payment failure never aborts the batch; it is recorded and the run
 *     continues.
 *   - Re-running over already-synced payments is a no-op unless force is set.
 *   - Dry runs compute everything but write nothing durable.
 *
 * @dependencies
 * - internal/store: Payment and fee persistence.
 * - internal/psp: Per-provider fee gateways.
 * - pkg/mollieoauth: OAuth state tokens for the connect flow.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
	"github.com/ticketfabric/psp-fee-service/internal/psp"
	"github.com/ticketfabric/psp-fee-service/internal/store"
	"github.com/ticketfabric/psp-fee-service/pkg/mollieoauth"
)

// ErrTenantNotFound is returned for operations against an unknown tenant.
var ErrTenantNotFound = errors.New("tenant not found")

// oauthStateTTL bounds how long a started connect flow stays redeemable.
const oauthStateTTL = 15 * time.Minute

// EventPublisher is the messaging surface for sync lifecycle events.
type EventPublisher interface {
	PublishFeeSyncCompleted(ctx context.Context, tenantID uuid.UUID, result *domain.SyncResult) error
}

// Service orchestrates fee synchronization and the OAuth lifecycle.
type Service struct {
	repo        store.Repository
	creds       *CredentialManager
	oauth       OAuthClient
	locker      TenantLocker
	publisher   EventPublisher
	gateways    GatewayFactory
	stateSecret []byte
	maxPayments int
	now         func() time.Time
}

// NewService creates the sync service.
func NewService(repo store.Repository, creds *CredentialManager, oauth OAuthClient, locker TenantLocker, publisher EventPublisher, gateways GatewayFactory, stateSecret []byte, maxPayments int) *Service {
	if maxPayments <= 0 {
		maxPayments = 500
	}
	return &Service{
		repo:        repo,
		creds:       creds,
		oauth:       oauth,
		locker:      locker,
		publisher:   publisher,
		gateways:    gateways,
		stateSecret: stateSecret,
		maxPayments: maxPayments,
		now:         time.Now,
	}
}

// SyncPayments reconciles fees for an explicit payment set belonging to one
// tenant. Unknown payment ids are recorded as failures, not batch errors.
func (s *Service) SyncPayments(ctx context.Context, tenantID uuid.UUID, paymentIDs []uuid.UUID, opts domain.SyncOptions) (*domain.SyncResult, error) {
	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := s.tenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var payments []domain.Payment
	result := &domain.SyncResult{}
	for _, paymentID := range paymentIDs {
		payment, err := s.repo.FindPaymentByID(ctx, tenantID, paymentID)
		if err != nil {
			if errors.Is(err, store.ErrPaymentNotFound) {
				// Requested but unresolvable payments still count toward the
				// batch total so total = synced + skipped + failed holds.
				result.TotalPayments++
				result.AddError(paymentID, "payment not found")
				continue
			}
			return nil, err
		}
		payments = append(payments, *payment)
	}

	s.syncBatch(ctx, cfg, payments, opts, result)
	s.publishCompleted(ctx, tenantID, opts.DryRun, result)
	return result, nil
}

// SyncByDateRange reconciles fees for every confirmed payment of the tenant's
// syncable providers inside the window. Already-synced payments are skipped;
// force widens the run to recompute them.
func (s *Service) SyncByDateRange(ctx context.Context, tenantID uuid.UUID, opts domain.DateRangeSyncOptions) (*domain.SyncResult, error) {
	release, err := s.locker.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	cfg, err := s.tenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	from, to := opts.From, opts.To
	if opts.DaysBack > 0 {
		end := s.now()
		start := end.AddDate(0, 0, -opts.DaysBack)
		from, to = &start, &end
	}
	limit := opts.MaxPayments
	if limit <= 0 || limit > s.maxPayments {
		limit = s.maxPayments
	}

	payments, err := s.repo.ListConfirmedPayments(ctx, tenantID, store.PaymentQueryOptions{
		From:      from,
		To:        to,
		Providers: domain.SyncableProviders,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	result := &domain.SyncResult{}
	syncOpts := domain.SyncOptions{
		Force:             opts.Force,
		DryRun:            opts.DryRun,
		SkipAlreadySynced: true,
	}
	s.syncBatch(ctx, cfg, payments, syncOpts, result)
	s.publishCompleted(ctx, tenantID, opts.DryRun, result)
	return result, nil
}

// syncBatch runs the per-payment state machine over a payment set. Gateways
// are built once per provider and shared across the batch.
func (s *Service) syncBatch(ctx context.Context, cfg *domain.TenantPSPConfig, payments []domain.Payment, opts domain.SyncOptions, result *domain.SyncResult) {
	result.TotalPayments += len(payments)
	if len(payments) == 0 {
		return
	}

	accessToken, err := s.creds.EnsureValidMollieToken(ctx, cfg)
	if err != nil {
		// Sync can still proceed on the API key; only the exact settlement
		// path degrades to last-known rates or estimation.
		log.Printf("level=warn component=app msg=\"proceeding without oauth token\" tenant_id=%s error=%v", cfg.TenantID, err)
		accessToken = ""
	}

	gateways := make(map[string]psp.Gateway)
	for i := range payments {
		s.syncOne(ctx, cfg, &payments[i], opts, accessToken, gateways, result)
	}

	log.Printf("level=info component=app msg=\"sync batch finished\" tenant_id=%s total=%d synced=%d skipped=%d failed=%d dry_run=%t",
		cfg.TenantID, result.TotalPayments, result.SyncedPayments, result.SkippedPayments, result.FailedPayments, opts.DryRun)
}

func (s *Service) syncOne(ctx context.Context, cfg *domain.TenantPSPConfig, payment *domain.Payment, opts domain.SyncOptions, accessToken string, gateways map[string]psp.Gateway, result *domain.SyncResult) {
	if payment.State != domain.PaymentStateConfirmed {
		result.AddSkip()
		return
	}

	// An already-synced payment stays synced no matter which batch options the
	// caller picked; only force recomputes it.
	if !opts.Force {
		if payment.Synced() {
			result.AddSkip()
			return
		}
		// SkipAlreadySynced additionally consults the fee-record table before
		// any network traffic, catching records whose annotation is missing.
		if opts.SkipAlreadySynced {
			has, err := s.repo.HasFeeRecord(ctx, payment.ID, payment.FeeInternalType())
			if err != nil {
				result.AddError(payment.ID, fmt.Sprintf("fee record lookup failed: %v", err))
				return
			}
			if has {
				result.AddSkip()
				return
			}
		}
	}

	transactionID := payment.ExternalTransactionID()
	if transactionID == "" {
		result.AddError(payment.ID, "payment has no external transaction id")
		return
	}

	gateway, ok := gateways[payment.Provider]
	if !ok {
		var err error
		gateway, err = s.gateways.GatewayFor(cfg, payment.Provider, accessToken)
		if err != nil {
			if errors.Is(err, psp.ErrNotConfigured) {
				log.Printf("level=info component=app msg=\"provider not configured, skipping\" tenant_id=%s provider=%s", cfg.TenantID, payment.Provider)
				result.AddSkip()
				return
			}
			result.AddError(payment.ID, fmt.Sprintf("gateway setup failed: %v", err))
			return
		}
		gateways[payment.Provider] = gateway
	}

	fee, err := gateway.FetchFee(ctx, transactionID)
	if err != nil {
		if errors.Is(err, psp.ErrNotFound) {
			result.AddError(payment.ID, fmt.Sprintf("transaction %s not found at processor", transactionID))
			return
		}
		result.AddError(payment.ID, fmt.Sprintf("fee fetch failed: %v", err))
		return
	}

	if fee.FeeMinor == 0 {
		log.Printf("level=info component=app msg=\"no fee to record\" payment_id=%s transaction_id=%s", payment.ID, transactionID)
		result.AddSkip()
		return
	}

	if opts.DryRun {
		result.AddSuccess(fee.FeeMinor)
		return
	}

	record := &domain.FeeRecord{
		PaymentID:    payment.ID,
		TenantID:     payment.TenantID,
		InternalType: payment.FeeInternalType(),
		Description:  "Payment processor fee",
		AmountMinor:  fee.FeeMinor,
		Currency:     fee.Currency,
	}
	annotation := &domain.PSPFeeAnnotation{
		GrossAmount:      domain.FormatMinorUnits(fee.GrossMinor),
		SettlementAmount: domain.FormatMinorUnits(fee.NetMinor),
		FeeAmount:        domain.FormatMinorUnits(fee.FeeMinor),
		Currency:         fee.Currency,
		FeeDetails:       fee.Details,
		SettlementID:     fee.SettlementID,
		SyncedAt:         s.now().UTC().Format(time.RFC3339),
	}
	if err := s.repo.MaterializeFeeRecord(ctx, payment, record, annotation); err != nil {
		result.AddError(payment.ID, fmt.Sprintf("persist fee failed: %v", err))
		return
	}
	result.AddSuccess(fee.FeeMinor)
}

func (s *Service) publishCompleted(ctx context.Context, tenantID uuid.UUID, dryRun bool, result *domain.SyncResult) {
	if s.publisher == nil || dryRun {
		return
	}
	if err := s.publisher.PublishFeeSyncCompleted(ctx, tenantID, result); err != nil {
		log.Printf("level=error component=app msg=\"failed to publish sync completed event\" tenant_id=%s error=%v", tenantID, err)
	}
}

// StartMollieConnect begins the OAuth authorization flow for a tenant and
// returns the URL the operator must be redirected to.
func (s *Service) StartMollieConnect(ctx context.Context, tenantID uuid.UUID) (string, error) {
	if _, err := s.tenantConfig(ctx, tenantID); err != nil {
		return "", err
	}
	state, err := mollieoauth.NewStateToken(s.stateSecret, tenantID, oauthStateTTL)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthorizationURL(state), nil
}

// CompleteMollieConnect finishes the OAuth flow from the processor callback:
// the state token is verified, the code exchanged and the grant persisted.
func (s *Service) CompleteMollieConnect(ctx context.Context, state, code string) (uuid.UUID, error) {
	tenantID, err := mollieoauth.ParseStateToken(s.stateSecret, state)
	if err != nil {
		return uuid.Nil, err
	}
	cfg, err := s.tenantConfig(ctx, tenantID)
	if err != nil {
		return uuid.Nil, err
	}

	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	expiresAt := token.ExpiresAt(s.now())
	err = s.repo.SetMollieOAuthConnected(ctx, tenantID, cfg.MollieClientID, cfg.MollieClientSecret, token.AccessToken, token.RefreshToken, expiresAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("persist oauth connection: %w", err)
	}

	log.Printf("level=info component=app msg=\"oauth connection established\" tenant_id=%s", tenantID)
	return tenantID, nil
}

// DisconnectMollie revokes the tenant's grant at the processor and clears the
// stored credentials. Revocation failure is logged but never blocks the local
// disconnect.
func (s *Service) DisconnectMollie(ctx context.Context, tenantID uuid.UUID) error {
	cfg, err := s.tenantConfig(ctx, tenantID)
	if err != nil {
		return err
	}

	if cfg.MollieRefreshToken != "" {
		if err := s.oauth.RevokeToken(ctx, cfg.MollieRefreshToken); err != nil {
			log.Printf("level=warn component=app msg=\"failed to revoke oauth grant\" tenant_id=%s error=%v", tenantID, err)
		}
	}
	if err := s.repo.DisconnectMollieOAuth(ctx, tenantID); err != nil {
		return fmt.Errorf("persist oauth disconnect: %w", err)
	}

	log.Printf("level=info component=app msg=\"oauth connection removed\" tenant_id=%s", tenantID)
	return nil
}

func (s *Service) tenantConfig(ctx context.Context, tenantID uuid.UUID) (*domain.TenantPSPConfig, error) {
	cfg, err := s.repo.GetTenantPSPConfig(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	return cfg, nil
}
