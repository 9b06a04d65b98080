/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the psp-fee-service. By defining an
 * interface, we decouple the reconciliation logic from the specific database
 * implementation (e.g., PostgreSQL), making the code more modular and easier to
 * test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

// PaymentQueryOptions narrows a payment listing by date window, provider set
// and page size.
type PaymentQueryOptions struct {
	From      *time.Time
	To        *time.Time
	Providers []string
	Limit     int
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Payment methods
	ListConfirmedPayments(ctx context.Context, tenantID uuid.UUID, opts PaymentQueryOptions) ([]domain.Payment, error)
	FindPaymentByID(ctx context.Context, tenantID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error)

	// Fee record methods
	HasFeeRecord(ctx context.Context, paymentID uuid.UUID, internalType string) (bool, error)
	MaterializeFeeRecord(ctx context.Context, payment *domain.Payment, fee *domain.FeeRecord, annotation *domain.PSPFeeAnnotation) error

	// Transaction fee cache methods
	GetFreshCachedTransactionFee(ctx context.Context, tenantID uuid.UUID, provider, transactionID string, maxAge time.Duration) (*domain.CachedTransactionFee, error)
	UpsertCachedTransactionFee(ctx context.Context, entry *domain.CachedTransactionFee) error

	// Settlement rate methods
	GetSettlementRateTable(ctx context.Context, tenantID uuid.UUID, settlementID string) (*domain.SettlementRateTable, error)
	CreateSettlementRateTable(ctx context.Context, table *domain.SettlementRateTable) error

	// Tenant configuration methods
	GetTenantPSPConfig(ctx context.Context, tenantID uuid.UUID) (*domain.TenantPSPConfig, error)
	UpdateMollieOAuthTokens(ctx context.Context, tenantID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	SetMollieOAuthConnected(ctx context.Context, tenantID uuid.UUID, clientID, clientSecret, accessToken, refreshToken string, expiresAt time.Time) error
	DisconnectMollieOAuth(ctx context.Context, tenantID uuid.UUID) error
	UpdateLastKnownRates(ctx context.Context, tenantID uuid.UUID, rates domain.RateTable) error
	LastKnownRates(ctx context.Context, tenantID uuid.UUID) (domain.RateTable, error)
}
