/**
 * @description
 * This file defines the `Gateway` interface, the per-provider contract for
 * resolving the processor fee of a single external transaction, and the narrow
 * persistence surfaces gateways depend on. The sync orchestrator only talks to
 * gateways through these interfaces, which keeps the per-provider fee logic
 * swappable and testable with fakes.
 */

package psp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ticketfabric/psp-fee-service/internal/domain"
)

var (
	// ErrNotFound means the processor has no record of the transaction.
	ErrNotFound = errors.New("external transaction not found")

	// ErrNotConfigured means the tenant has no usable credentials for the
	// payment's provider.
	ErrNotConfigured = errors.New("provider not configured for tenant")
)

// Gateway resolves the fee result for one external transaction id.
type Gateway interface {
	Provider() string
	FetchFee(ctx context.Context, transactionID string) (*domain.FeeResult, error)
}

// FeeCache is the short-TTL transaction fee cache surface. Losing it never
// changes correctness, only the number of processor API calls.
type FeeCache interface {
	GetFreshCachedTransactionFee(ctx context.Context, tenantID uuid.UUID, provider, transactionID string, maxAge time.Duration) (*domain.CachedTransactionFee, error)
	UpsertCachedTransactionFee(ctx context.Context, entry *domain.CachedTransactionFee) error
}

// RateSource supplies settlement rate tables for the exact fee path.
type RateSource interface {
	// RatesForSettlement returns the rate table of a settlement, fetching and
	// persisting it on first sight.
	RatesForSettlement(ctx context.Context, settlementID string) (domain.RateTable, error)

	// FallbackRates returns the tenant's last known rate table for payments
	// that have not settled yet. nil means no snapshot exists.
	FallbackRates(ctx context.Context) (domain.RateTable, error)
}
